package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"docchat/internal/domain"
)

const (
	skPrefixRun = "RUN#"
	skLatest    = "LATEST#"
	ttlDuration = 90 * 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client records ingestion runs per index in a single DynamoDB table.
type Client struct {
	api       dynamodbAPI
	tableName string
}

func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName}, nil
}

func indexPK(index string) string {
	return "INDEX#" + index
}

func runSK(ts time.Time) string {
	return skPrefixRun + ts.UTC().Format(time.RFC3339Nano)
}

func ttlValue(from time.Time) int64 {
	return from.Add(ttlDuration).Unix()
}

// RecordRun stores the run and moves the index's latest pointer to it in one
// transaction.
func (c *Client) RecordRun(ctx context.Context, run domain.IngestionRun) error {
	if strings.TrimSpace(run.Index) == "" {
		return errors.New("repository: RecordRun: index is required")
	}
	if run.StartedAt.IsZero() {
		return errors.New("repository: RecordRun: start time is required")
	}

	sk := runSK(run.StartedAt)
	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                runItem(run, sk),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item:      runItem(run, skLatest),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: RecordRun: %w", err)
	}
	return nil
}

// LatestRun returns the most recent run for index, or false when none exists.
func (c *Client) LatestRun(ctx context.Context, index string) (domain.IngestionRun, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: indexPK(index)},
			"SK": &types.AttributeValueMemberS{Value: skLatest},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.IngestionRun{}, false, fmt.Errorf("repository: LatestRun get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.IngestionRun{}, false, nil
	}
	run, err := itemToRun(out.Item)
	if err != nil {
		return domain.IngestionRun{}, false, fmt.Errorf("repository: LatestRun decode: %w", err)
	}
	return run, true, nil
}

// ListRuns returns up to limit runs for index, newest first.
func (c *Client) ListRuns(ctx context.Context, index string, limit int) ([]domain.IngestionRun, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: indexPK(index)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixRun},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}

	out, err := c.api.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("repository: ListRuns query: %w", err)
	}

	runs := make([]domain.IngestionRun, 0, len(out.Items))
	for _, item := range out.Items {
		run, err := itemToRun(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListRuns unmarshal: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func runItem(run domain.IngestionRun, sk string) map[string]types.AttributeValue {
	files := make([]types.AttributeValue, 0, len(run.Files))
	for _, f := range run.Files {
		files = append(files, &types.AttributeValueMemberS{Value: f})
	}
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: indexPK(run.Index)},
		"SK":         &types.AttributeValueMemberS{Value: sk},
		"index":      &types.AttributeValueMemberS{Value: run.Index},
		"files":      &types.AttributeValueMemberL{Value: files},
		"chunks":     &types.AttributeValueMemberN{Value: strconv.Itoa(run.Chunks)},
		"indexed":    &types.AttributeValueMemberN{Value: strconv.Itoa(run.Indexed)},
		"startedAt":  &types.AttributeValueMemberS{Value: run.StartedAt.UTC().Format(time.RFC3339Nano)},
		"finishedAt": &types.AttributeValueMemberS{Value: run.FinishedAt.UTC().Format(time.RFC3339Nano)},
		"ttl":        &types.AttributeValueMemberN{Value: strconv.FormatInt(ttlValue(run.StartedAt), 10)},
	}
}

func itemToRun(item map[string]types.AttributeValue) (domain.IngestionRun, error) {
	index, err := strAttr(item, "index")
	if err != nil {
		return domain.IngestionRun{}, err
	}
	chunks, err := intAttr(item, "chunks")
	if err != nil {
		return domain.IngestionRun{}, err
	}
	indexed, err := intAttr(item, "indexed")
	if err != nil {
		return domain.IngestionRun{}, err
	}
	startedAt, err := timeAttr(item, "startedAt")
	if err != nil {
		return domain.IngestionRun{}, err
	}
	finishedAt, err := timeAttr(item, "finishedAt")
	if err != nil {
		return domain.IngestionRun{}, err
	}

	var files []string
	if l, ok := item["files"].(*types.AttributeValueMemberL); ok {
		for _, v := range l.Value {
			if s, ok := v.(*types.AttributeValueMemberS); ok {
				files = append(files, s.Value)
			}
		}
	}

	return domain.IngestionRun{
		Index:      index,
		Files:      files,
		Chunks:     chunks,
		Indexed:    indexed,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}, nil
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

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return ts, nil
}
