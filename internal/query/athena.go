package query

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// AthenaService is the production Service backed by Amazon Athena, with the
// CSV result sets read from the configured result bucket.
type AthenaService struct {
	athena       *athena.Client
	s3           *s3.Client
	database     string
	resultBucket string
	resultPrefix string
}

// NewAthenaService wires an Athena-backed query service.
func NewAthenaService(athenaClient *athena.Client, s3Client *s3.Client, database, resultBucket, resultPrefix string) *AthenaService {
	return &AthenaService{
		athena:       athenaClient,
		s3:           s3Client,
		database:     database,
		resultBucket: resultBucket,
		resultPrefix: resultPrefix,
	}
}

func (s *AthenaService) StartQuery(ctx context.Context, sql string) (string, error) {
	out, err := s.athena.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(sql),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{
			Database: aws.String(s.database),
		},
		ResultConfiguration: &athenatypes.ResultConfiguration{
			OutputLocation: aws.String(fmt.Sprintf("s3://%s/%s", s.resultBucket, s.resultPrefix)),
			EncryptionConfiguration: &athenatypes.EncryptionConfiguration{
				EncryptionOption: athenatypes.EncryptionOptionSseS3,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("start query execution: %w", err)
	}
	return aws.ToString(out.QueryExecutionId), nil
}

func (s *AthenaService) GetStatus(ctx context.Context, executionID string) (Status, error) {
	out, err := s.athena.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
		QueryExecutionId: aws.String(executionID),
	})
	if err != nil {
		return Status{}, fmt.Errorf("get query execution: %w", err)
	}

	exec := out.QueryExecution
	status := Status{State: State(exec.Status.State)}
	if exec.Status.StateChangeReason != nil {
		status.Reason = aws.ToString(exec.Status.StateChangeReason)
	}
	if exec.Statistics != nil && exec.Statistics.DataScannedInBytes != nil {
		status.BytesScanned = aws.ToInt64(exec.Statistics.DataScannedInBytes)
	}
	if exec.ResultConfiguration != nil {
		status.ResultLocation = aws.ToString(exec.ResultConfiguration.OutputLocation)
	}
	return status, nil
}

func (s *AthenaService) FetchResult(ctx context.Context, executionID string) (io.ReadCloser, error) {
	key := fmt.Sprintf("%s%s.csv", s.resultPrefix, executionID)
	out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.resultBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch result %s: %w", key, err)
	}
	return out.Body, nil
}
