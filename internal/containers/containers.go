// Package containers reads tracked-site definitions, including their goal
// lists, from the key-value store. The goal evaluator is a pure reader; the
// container management API owns all writes.
package containers

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrNotFound reports a container id with no definition.
var ErrNotFound = errors.New("container not found")

// Match modes accepted by goal rules.
const (
	MatchEq     = "eq"
	MatchPrefix = "prefix"
	MatchRegex  = "regex"
)

// Goal is a conversion definition owned by a container. Target matches the
// event name; Path and Label are optional extra rules.
type Goal struct {
	ID          string `json:"id" dynamodbav:"id"`
	Name        string `json:"name" dynamodbav:"name"`
	Target      string `json:"target" dynamodbav:"target"`
	TargetMatch string `json:"target_match" dynamodbav:"target_match"`
	Path        string `json:"path,omitempty" dynamodbav:"path,omitempty"`
	PathMatch   string `json:"path_match,omitempty" dynamodbav:"path_match,omitempty"`
	Label       string `json:"label,omitempty" dynamodbav:"label,omitempty"`
	LabelMatch  string `json:"label_match,omitempty" dynamodbav:"label_match,omitempty"`
}

// Container is a tracked website under an organization.
type Container struct {
	TID          string `json:"tid" dynamodbav:"tid"`
	Organization string `json:"organization" dynamodbav:"organization"`
	Goals        []Goal `json:"goals,omitempty" dynamodbav:"goals,omitempty"`
}

// FindGoal returns the goal with the given id, or ErrNotFound.
func (c *Container) FindGoal(goalID string) (Goal, error) {
	for _, g := range c.Goals {
		if g.ID == goalID {
			return g, nil
		}
	}
	return Goal{}, fmt.Errorf("goal %s: %w", goalID, ErrNotFound)
}

// Store reads container definitions.
type Store interface {
	Get(ctx context.Context, tid string) (*Container, error)
	// ScanWithGoals visits every container that carries at least one goal.
	ScanWithGoals(ctx context.Context, visit func(Container) error) error
}

// DynamoStore is the production Store backed by the container table.
type DynamoStore struct {
	client *dynamodb.Client
	table  string
}

// NewDynamoStore creates a container store for the given table.
func NewDynamoStore(client *dynamodb.Client, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

func (s *DynamoStore) Get(ctx context.Context, tid string) (*Container, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"tid": &types.AttributeValueMemberS{Value: tid},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get container %s: %w", tid, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("container %s: %w", tid, ErrNotFound)
	}

	var c Container
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal container %s: %w", tid, err)
	}
	return &c, nil
}

func (s *DynamoStore) ScanWithGoals(ctx context.Context, visit func(Container) error) error {
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.table),
			FilterExpression:  aws.String("attribute_exists(goals)"),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return fmt.Errorf("scan containers: %w", err)
		}

		for _, item := range out.Items {
			var c Container
			if err := attributevalue.UnmarshalMap(item, &c); err != nil {
				return fmt.Errorf("unmarshal container item: %w", err)
			}
			if err := visit(c); err != nil {
				return err
			}
		}

		if out.LastEvaluatedKey == nil {
			return nil
		}
		startKey = out.LastEvaluatedKey
	}
}
