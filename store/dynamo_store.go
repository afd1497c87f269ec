package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoBackend.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

const (
	DynamoKeyAttr = "pk"
	dynamoDocAttr = "doc"
	dynamoRevAttr = "rev"
)

// DynamoBackend stores each document in the map attribute "doc" of the item
// whose partition key "pk" is the document key. The SDK client pools HTTP
// connections, so a session only scopes request state.
type DynamoBackend struct {
	api   DynamoAPI
	table string
}

func NewDynamoBackend(api DynamoAPI, table string) *DynamoBackend {
	return &DynamoBackend{api: api, table: table}
}

func (d *DynamoBackend) Name() string { return BackendDynamo }

func (d *DynamoBackend) Connect(_ context.Context) (Session, error) {
	return &dynamoSession{api: d.api, table: d.table}, nil
}

func (d *DynamoBackend) Ping(ctx context.Context) error {
	_, err := d.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.table)})
	if err != nil {
		return fmt.Errorf("%w: dynamodb: %v", ErrUnavailable, err)
	}
	return nil
}

func (d *DynamoBackend) Close() error { return nil }

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func dynamoError(err error) error {
	if err == nil {
		return nil
	}
	var rnf *types.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return fmt.Errorf("%w: dynamodb: %v", ErrUnavailable, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultClient {
		return fmt.Errorf("%w: dynamodb: %v", ErrWriteIncomplete, err)
	}
	return fmt.Errorf("%w: dynamodb: %v", ErrUnavailable, err)
}

// toAttribute converts a JSON-encodable value into a DynamoDB attribute.
func toAttribute(value any) (types.AttributeValue, error) {
	data, err := encode(value)
	if err != nil {
		return nil, err
	}
	v, err := decode(data)
	if err != nil {
		return nil, err
	}
	av, err := attributevalue.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal attribute: %v", ErrWriteIncomplete, err)
	}
	return av, nil
}

func fromAttribute(av types.AttributeValue) (json.RawMessage, error) {
	var v any
	if err := attributevalue.Unmarshal(av, &v); err != nil {
		return nil, fmt.Errorf("unmarshal attribute: %w", err)
	}
	return json.Marshal(v)
}

// updateBuilder accumulates a SET expression with generated placeholders.
type updateBuilder struct {
	sets   []string
	names  map[string]string
	values map[string]types.AttributeValue
}

func newUpdateBuilder() *updateBuilder {
	return &updateBuilder{
		names:  map[string]string{"#doc": dynamoDocAttr, "#rev": dynamoRevAttr},
		values: map[string]types.AttributeValue{},
	}
}

// set adds "SET <path> = <value>" for a document field ("" for the root).
func (u *updateBuilder) set(field string, av types.AttributeValue) {
	n := strconv.Itoa(len(u.sets))
	target := "#doc"
	if field != "" {
		u.names["#f"+n] = field
		target = "#doc.#f" + n
	}
	u.values[":v"+n] = av
	u.sets = append(u.sets, target+" = :v"+n)
}

func (u *updateBuilder) bumpRevision() string {
	u.values[":zero"] = &types.AttributeValueMemberN{Value: "0"}
	u.values[":one"] = &types.AttributeValueMemberN{Value: "1"}
	return "SET " + strings.Join(append(u.sets, "#rev = if_not_exists(#rev, :zero) + :one"), ", ")
}

type dynamoSession struct {
	api    DynamoAPI
	table  string
	closed bool
}

func (s *dynamoSession) key(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{DynamoKeyAttr: &types.AttributeValueMemberS{Value: key}}
}

// load returns the value at path and the item revision ("" when the item
// predates revision tracking).
func (s *dynamoSession) load(ctx context.Context, key, path string) (data json.RawMessage, rev string, err error) {
	if s.closed {
		return nil, "", fmt.Errorf("%w: session closed", ErrUnavailable)
	}
	field, err := Field(path)
	if err != nil {
		return nil, "", err
	}
	names := map[string]string{"#doc": dynamoDocAttr, "#rev": dynamoRevAttr}
	projection := "#doc, #rev"
	if field != "" {
		names["#f"] = field
		projection = "#doc.#f, #rev"
	}
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(s.table),
		Key:                      s.key(key),
		ConsistentRead:           aws.Bool(true),
		ProjectionExpression:     aws.String(projection),
		ExpressionAttributeNames: names,
	})
	if err != nil {
		return nil, "", dynamoError(err)
	}
	doc, ok := out.Item[dynamoDocAttr]
	if !ok {
		return nil, "", ErrNotFound
	}
	if field != "" {
		m, isMap := doc.(*types.AttributeValueMemberM)
		if !isMap {
			return nil, "", ErrNotFound
		}
		if doc, ok = m.Value[field]; !ok {
			return nil, "", ErrNotFound
		}
	}
	if n, isNum := out.Item[dynamoRevAttr].(*types.AttributeValueMemberN); isNum {
		rev = n.Value
	}
	data, err = fromAttribute(doc)
	if err != nil {
		return nil, "", err
	}
	return data, rev, nil
}

func (s *dynamoSession) Get(ctx context.Context, key, path string) (json.RawMessage, error) {
	data, _, err := s.load(ctx, key, path)
	return data, err
}

func (s *dynamoSession) Set(ctx context.Context, key, path string, value any) error {
	if s.closed {
		return fmt.Errorf("%w: session closed", ErrUnavailable)
	}
	field, err := Field(path)
	if err != nil {
		return err
	}
	av, err := toAttribute(value)
	if err != nil {
		return err
	}
	u := newUpdateBuilder()
	u.set(field, av)
	input := &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       s.key(key),
		UpdateExpression:          aws.String(u.bumpRevision()),
		ExpressionAttributeNames:  u.names,
		ExpressionAttributeValues: u.values,
	}
	if field != "" {
		input.ConditionExpression = aws.String("attribute_exists(#doc)")
	}
	if _, err := s.api.UpdateItem(ctx, input); err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return dynamoError(err)
	}
	return nil
}

func (s *dynamoSession) Delete(ctx context.Context, key string) (int64, error) {
	if s.closed {
		return 0, fmt.Errorf("%w: session closed", ErrUnavailable)
	}
	out, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.table),
		Key:          s.key(key),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return 0, dynamoError(err)
	}
	if len(out.Attributes) == 0 {
		return 0, nil
	}
	return 1, nil
}

func (s *dynamoSession) Batch(key string) Batch {
	return &dynamoBatch{session: s, key: key}
}

// Modify writes the new value only if the revision read is still current.
func (s *dynamoSession) Modify(ctx context.Context, key, path string, fn ModifyFunc) error {
	current, rev, err := s.load(ctx, key, path)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	av, err := toAttribute(next)
	if err != nil {
		return err
	}
	field, _ := Field(path)

	u := newUpdateBuilder()
	u.set(field, av)
	condition := "attribute_exists(#doc) AND attribute_not_exists(#rev)"
	if rev != "" {
		condition = "#rev = :rev"
		u.values[":rev"] = &types.AttributeValueMemberN{Value: rev}
	}
	_, err = s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       s.key(key),
		UpdateExpression:          aws.String(u.bumpRevision()),
		ConditionExpression:       aws.String(condition),
		ExpressionAttributeNames:  u.names,
		ExpressionAttributeValues: u.values,
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrConflict
		}
		return dynamoError(err)
	}
	return nil
}

func (s *dynamoSession) Close() error {
	s.closed = true
	return nil
}

type dynamoBatch struct {
	session *dynamoSession
	key     string
	ops     []pendingSet
}

func (b *dynamoBatch) Set(path string, value any) {
	b.ops = append(b.ops, pendingSet{path: path, value: value})
}

func (b *dynamoBatch) Len() int { return len(b.ops) }

// Exec sends every field in a single UpdateItem. DynamoDB applies an item
// update as a unit, so the outcomes are either all nil or all the same error.
func (b *dynamoBatch) Exec(ctx context.Context) ([]error, error) {
	if b.session.closed {
		return nil, fmt.Errorf("%w: session closed", ErrUnavailable)
	}
	u := newUpdateBuilder()
	for _, op := range b.ops {
		field, err := Field(op.path)
		if err != nil {
			return nil, err
		}
		if field == "" {
			return nil, fmt.Errorf("%w: batch cannot replace the document root", ErrInvalidPath)
		}
		av, err := toAttribute(op.value)
		if err != nil {
			return nil, err
		}
		u.set(field, av)
	}

	_, err := b.session.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(b.session.table),
		Key:                       b.session.key(b.key),
		UpdateExpression:          aws.String(u.bumpRevision()),
		ConditionExpression:       aws.String("attribute_exists(#doc)"),
		ExpressionAttributeNames:  u.names,
		ExpressionAttributeValues: u.values,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, ErrNotFound
		}
		mapped := dynamoError(err)
		if errors.Is(mapped, ErrUnavailable) {
			return nil, mapped
		}
		return fill(len(b.ops), mapped), nil
	}
	return make([]error, len(b.ops)), nil
}
