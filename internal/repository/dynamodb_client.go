package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"claims-agent/internal/domain"
)

const (
	pkPrefix = "POLICY#"
	skPrefix = "TURN#"
	// skUpper sorts after every timestamped sort key.
	skUpper = skPrefix + "~"
	// sortableTime is fixed width so lexical order of sort keys matches time order.
	sortableTime = "2006-01-02T15:04:05.000000000Z"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Client wraps a DynamoDB table holding conversation turns, one item per turn
// partitioned by policy number.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// Option configures a store.
type Option func(*storeOptions)

type storeOptions struct {
	now func() time.Time
}

// WithClock overrides the clock used to stamp and filter turns.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func applyOptions(opts []Option) storeOptions {
	o := storeOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	o := applyOptions(opts)
	return &Client{api: api, tableName: tableName, now: o.now}, nil
}

// policyPK returns the DynamoDB partition key for a policy's conversation.
func policyPK(policyNumber string) string {
	return pkPrefix + policyNumber
}

// turnSK returns the sort key for a turn. The id suffix is a version 7 UUID,
// so two turns written by one process in the same nanosecond stay distinct
// and sort in write order.
func turnSK(ts time.Time, id string) string {
	return skPrefix + ts.UTC().Format(sortableTime) + "#" + id
}

// Append writes one turn stamped with the store clock.
func (c *Client) Append(ctx context.Context, policyNumber, query, response string) error {
	if strings.TrimSpace(policyNumber) == "" {
		return errors.New("repository: Append: policy number is required")
	}
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("repository: Append: turn id: %w", err)
	}
	turn := domain.Turn{
		ID:           id.String(),
		PolicyNumber: policyNumber,
		Query:        query,
		Response:     response,
		CreatedAt:    c.now().UTC(),
	}

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                turnItem(turn),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: Append: %w", err)
	}
	return nil
}

// Recent returns up to maxCount turns for the policy created within maxAge of
// now, oldest first. A policy with no qualifying turns yields an empty slice
// and no error. maxAge <= 0 disables the age bound.
func (c *Client) Recent(ctx context.Context, policyNumber string, maxCount int, maxAge time.Duration) ([]domain.Turn, error) {
	if strings.TrimSpace(policyNumber) == "" {
		return nil, errors.New("repository: Recent: policy number is required")
	}
	if maxCount <= 0 {
		return nil, nil
	}

	from := skPrefix
	if maxAge > 0 {
		from = skPrefix + c.now().UTC().Add(-maxAge).Format(sortableTime)
	}

	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND SK BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: policyPK(policyNumber)},
			":from": &types.AttributeValueMemberS{Value: from},
			":to":   &types.AttributeValueMemberS{Value: skUpper},
		},
		// Read newest first so LIMIT favors the most recent context.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(maxCount)),
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: Recent query: %w", err)
	}
	if out == nil || len(out.Items) == 0 {
		return nil, nil
	}

	turns := make([]domain.Turn, 0, len(out.Items))
	for _, item := range out.Items {
		turn, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: Recent unmarshal: %w", err)
		}
		turns = append(turns, turn)
	}
	reverseTurns(turns)
	return turns, nil
}

// itemToTurn converts a DynamoDB attribute map to a Turn.
func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	policyNumber, err := strAttr(item, "policyNumber")
	if err != nil {
		return domain.Turn{}, err
	}
	query, err := strAttr(item, "query")
	if err != nil {
		return domain.Turn{}, err
	}
	response, err := strAttr(item, "response")
	if err != nil {
		return domain.Turn{}, err
	}
	created, err := strAttr(item, "createdAt")
	if err != nil {
		return domain.Turn{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return domain.Turn{}, fmt.Errorf("repository: parse attribute %q: %w", "createdAt", err)
	}
	id, _ := strAttr(item, "id") // allow legacy items without an id

	return domain.Turn{
		ID:           id,
		PolicyNumber: policyNumber,
		Query:        query,
		Response:     response,
		CreatedAt:    createdAt,
	}, nil
}

func turnItem(t domain.Turn) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":           &types.AttributeValueMemberS{Value: policyPK(t.PolicyNumber)},
		"SK":           &types.AttributeValueMemberS{Value: turnSK(t.CreatedAt, t.ID)},
		"id":           &types.AttributeValueMemberS{Value: t.ID},
		"policyNumber": &types.AttributeValueMemberS{Value: t.PolicyNumber},
		"query":        &types.AttributeValueMemberS{Value: t.Query},
		"response":     &types.AttributeValueMemberS{Value: t.Response},
		"createdAt":    &types.AttributeValueMemberS{Value: t.CreatedAt.UTC().Format(time.RFC3339Nano)},
	}
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

// reverseTurns flips a newest-first page into chronological order.
func reverseTurns(turns []domain.Turn) {
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
}
