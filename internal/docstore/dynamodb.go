package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

const (
	batchGetLimit   = 100
	batchGetRetries = 5
)

// DynamoAPI is the subset of the DynamoDB client the store calls.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

var _ DynamoAPI = (*dynamodb.Client)(nil)

// Dynamo stores documents in DynamoDB tables keyed by pKey/sKey. Items are
// encoded through their json tags so the same structs serve both backends.
type Dynamo struct {
	api DynamoAPI
	// retryWait is the pause before re-requesting unprocessed batch keys.
	retryWait time.Duration
}

var _ Store = (*Dynamo)(nil)

func NewDynamo(api DynamoAPI) *Dynamo {
	return &Dynamo{api: api, retryWait: 50 * time.Millisecond}
}

func withJSONTags(o *attributevalue.EncoderOptions) { o.TagKey = "json" }

func withJSONTagsDecode(o *attributevalue.DecoderOptions) { o.TagKey = "json" }

// jsonValue makes expression values marshal through json tags.
type jsonValue struct{ v any }

func (j jsonValue) MarshalDynamoDBAttributeValue() (ddbtypes.AttributeValue, error) {
	return attributevalue.MarshalWithOptions(j.v, withJSONTags)
}

func dynamoKey(k Key) map[string]ddbtypes.AttributeValue {
	return map[string]ddbtypes.AttributeValue{
		AttrPK: &ddbtypes.AttributeValueMemberS{Value: k.PK},
		AttrSK: &ddbtypes.AttributeValueMemberS{Value: k.SK},
	}
}

func encodeItem(k Key, item any) (map[string]ddbtypes.AttributeValue, error) {
	av, err := attributevalue.MarshalMapWithOptions(item, withJSONTags)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", k, err)
	}
	for name, v := range dynamoKey(k) {
		av[name] = v
	}
	return av, nil
}

func conditionBuilder(c Condition) (expression.ConditionBuilder, bool) {
	var parts []expression.ConditionBuilder
	if c.exists != nil {
		if *c.exists {
			parts = append(parts, expression.AttributeExists(expression.Name(AttrPK)))
		} else {
			parts = append(parts, expression.AttributeNotExists(expression.Name(AttrPK)))
		}
	}
	for _, eq := range c.equals {
		parts = append(parts, expression.Name(eq.path).Equal(expression.Value(jsonValue{eq.value})))
	}
	switch len(parts) {
	case 0:
		return expression.ConditionBuilder{}, false
	case 1:
		return parts[0], true
	}
	return parts[0].And(parts[1], parts[2:]...), true
}

func updateBuilder(p *Patch) expression.UpdateBuilder {
	var ub expression.UpdateBuilder
	for _, a := range p.sets {
		ub = ub.Set(expression.Name(a.path), expression.Value(jsonValue{a.value}))
	}
	for _, a := range p.appends {
		name := expression.Name(a.path)
		ub = ub.Set(name, expression.ListAppend(
			expression.IfNotExists(name, expression.Value(jsonValue{[]any{}})),
			expression.Value(jsonValue{a.value}),
		))
	}
	for _, path := range p.removes {
		ub = ub.Remove(expression.Name(path))
	}
	return ub
}

// built carries the rendered expression strings for one request.
type built struct {
	condition *string
	update    *string
	names     map[string]string
	values    map[string]ddbtypes.AttributeValue
}

func buildExpr(cond Condition, patch *Patch) (built, error) {
	b := expression.NewBuilder()
	cb, hasCond := conditionBuilder(cond)
	if hasCond {
		b = b.WithCondition(cb)
	}
	if patch != nil {
		if patch.Empty() {
			return built{}, fmt.Errorf("empty patch")
		}
		b = b.WithUpdate(updateBuilder(patch))
	}
	if !hasCond && patch == nil {
		return built{}, nil
	}
	expr, err := b.Build()
	if err != nil {
		return built{}, fmt.Errorf("build expression: %w", err)
	}
	out := built{names: expr.Names(), values: expr.Values()}
	if hasCond {
		out.condition = expr.Condition()
	}
	if patch != nil {
		out.update = expr.Update()
	}
	return out, nil
}

// translate maps DynamoDB condition failures onto model.ErrConflict.
func translate(op string, key Key, err error) error {
	var ccf *ddbtypes.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return conflictf("%s %s: condition failed", op, key)
	}
	var tce *ddbtypes.TransactionCanceledException
	if errors.As(err, &tce) {
		for i, r := range tce.CancellationReasons {
			switch aws.ToString(r.Code) {
			case "ConditionalCheckFailed", "TransactionConflict":
				return conflictf("transaction item %d: %s", i, aws.ToString(r.Code))
			}
		}
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}

// Get reads with strong consistency so a caller sees its own earlier writes.
func (d *Dynamo) Get(ctx context.Context, key Key, out any) error {
	resp, err := d.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(key.Table),
		Key:            dynamoKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("GetItem(%s): %w", key, err)
	}
	if len(resp.Item) == 0 {
		return fmt.Errorf("%w: %s", model.ErrNotFound, key)
	}
	return attributevalue.UnmarshalMapWithOptions(resp.Item, out, withJSONTagsDecode)
}

func (d *Dynamo) Put(ctx context.Context, key Key, item any, cond Condition) error {
	av, err := encodeItem(key, item)
	if err != nil {
		return err
	}
	ex, err := buildExpr(cond, nil)
	if err != nil {
		return err
	}
	_, err = d.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(key.Table),
		Item:                      av,
		ConditionExpression:       ex.condition,
		ExpressionAttributeNames:  ex.names,
		ExpressionAttributeValues: ex.values,
	})
	if err != nil {
		return translate("PutItem", key, err)
	}
	return nil
}

func (d *Dynamo) Update(ctx context.Context, key Key, patch *Patch, cond Condition) error {
	if patch == nil {
		return fmt.Errorf("update %s: nil patch", key)
	}
	ex, err := buildExpr(cond, patch)
	if err != nil {
		return err
	}
	_, err = d.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(key.Table),
		Key:                       dynamoKey(key),
		UpdateExpression:          ex.update,
		ConditionExpression:       ex.condition,
		ExpressionAttributeNames:  ex.names,
		ExpressionAttributeValues: ex.values,
	})
	if err != nil {
		return translate("UpdateItem", key, err)
	}
	return nil
}

func (d *Dynamo) Delete(ctx context.Context, key Key, cond Condition) error {
	ex, err := buildExpr(cond, nil)
	if err != nil {
		return err
	}
	_, err = d.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(key.Table),
		Key:                       dynamoKey(key),
		ConditionExpression:       ex.condition,
		ExpressionAttributeNames:  ex.names,
		ExpressionAttributeValues: ex.values,
	})
	if err != nil {
		return translate("DeleteItem", key, err)
	}
	return nil
}

func transactItem(op Op) (ddbtypes.TransactWriteItem, error) {
	var patch *Patch
	if op.Kind == OpUpdate {
		if op.Patch == nil {
			return ddbtypes.TransactWriteItem{}, fmt.Errorf("update %s: nil patch", op.Key)
		}
		patch = op.Patch
	}
	ex, err := buildExpr(op.Cond, patch)
	if err != nil {
		return ddbtypes.TransactWriteItem{}, err
	}
	table := aws.String(op.Key.Table)
	switch op.Kind {
	case OpPut:
		av, err := encodeItem(op.Key, op.Item)
		if err != nil {
			return ddbtypes.TransactWriteItem{}, err
		}
		return ddbtypes.TransactWriteItem{Put: &ddbtypes.Put{
			TableName:                 table,
			Item:                      av,
			ConditionExpression:       ex.condition,
			ExpressionAttributeNames:  ex.names,
			ExpressionAttributeValues: ex.values,
		}}, nil
	case OpUpdate:
		return ddbtypes.TransactWriteItem{Update: &ddbtypes.Update{
			TableName:                 table,
			Key:                       dynamoKey(op.Key),
			UpdateExpression:          ex.update,
			ConditionExpression:       ex.condition,
			ExpressionAttributeNames:  ex.names,
			ExpressionAttributeValues: ex.values,
		}}, nil
	case OpDelete:
		return ddbtypes.TransactWriteItem{Delete: &ddbtypes.Delete{
			TableName:                 table,
			Key:                       dynamoKey(op.Key),
			ConditionExpression:       ex.condition,
			ExpressionAttributeNames:  ex.names,
			ExpressionAttributeValues: ex.values,
		}}, nil
	case OpCheck:
		return ddbtypes.TransactWriteItem{ConditionCheck: &ddbtypes.ConditionCheck{
			TableName:                 table,
			Key:                       dynamoKey(op.Key),
			ConditionExpression:       ex.condition,
			ExpressionAttributeNames:  ex.names,
			ExpressionAttributeValues: ex.values,
		}}, nil
	}
	return ddbtypes.TransactWriteItem{}, fmt.Errorf("unknown op kind %d", op.Kind)
}

// TransactWrite maps ops onto a single TransactWriteItems call.
func (d *Dynamo) TransactWrite(ctx context.Context, ops []Op) error {
	if err := checkTransaction(ops); err != nil {
		return err
	}
	items := make([]ddbtypes.TransactWriteItem, 0, len(ops))
	for _, op := range ops {
		it, err := transactItem(op)
		if err != nil {
			return err
		}
		items = append(items, it)
	}
	_, err := d.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return translate("TransactWriteItems", ops[0].Key, err)
	}
	return nil
}

// BatchGet returns the existing items among keys in no particular order.
// Unprocessed keys are retried a bounded number of times.
func (d *Dynamo) BatchGet(ctx context.Context, keys []Key) ([]Document, error) {
	var docs []Document
	for start := 0; start < len(keys); start += batchGetLimit {
		end := min(start+batchGetLimit, len(keys))
		got, err := d.batchGetChunk(ctx, keys[start:end])
		if err != nil {
			return nil, err
		}
		docs = append(docs, got...)
	}
	return docs, nil
}

func (d *Dynamo) batchGetChunk(ctx context.Context, keys []Key) ([]Document, error) {
	request := map[string]ddbtypes.KeysAndAttributes{}
	seen := map[Key]bool{}
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		ka := request[k.Table]
		ka.Keys = append(ka.Keys, dynamoKey(k))
		ka.ConsistentRead = aws.Bool(true)
		request[k.Table] = ka
	}

	var docs []Document
	for attempt := 0; len(request) > 0; attempt++ {
		if attempt > batchGetRetries {
			return nil, fmt.Errorf("BatchGetItem: keys still unprocessed after %d retries", batchGetRetries)
		}
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d.retryWait * time.Duration(attempt)):
			}
		}
		resp, err := d.api.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
		if err != nil {
			return nil, fmt.Errorf("BatchGetItem: %w", err)
		}
		for table, items := range resp.Responses {
			for _, item := range items {
				doc, err := dynamoDocument(table, item)
				if err != nil {
					return nil, err
				}
				docs = append(docs, doc)
			}
		}
		request = resp.UnprocessedKeys
	}
	return docs, nil
}

func dynamoDocument(table string, item map[string]ddbtypes.AttributeValue) (Document, error) {
	k := Key{Table: table}
	pk, ok := item[AttrPK].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return Document{}, fmt.Errorf("item in %s has no %s", table, AttrPK)
	}
	k.PK = pk.Value
	if sk, ok := item[AttrSK].(*ddbtypes.AttributeValueMemberS); ok {
		k.SK = sk.Value
	}
	return Document{Key: k, decode: func(out any) error {
		return attributevalue.UnmarshalMapWithOptions(item, out, withJSONTagsDecode)
	}}, nil
}

// EnsureTable creates a pKey/sKey table when it does not exist yet.
func EnsureTable(ctx context.Context, api DynamoAPI, tableName string) error {
	_, err := api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)})
	if err == nil {
		return nil
	}
	var rnfe *ddbtypes.ResourceNotFoundException
	if !errors.As(err, &rnfe) {
		return fmt.Errorf("DescribeTable(%s): %w", tableName, err)
	}

	_, err = api.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(tableName),
		BillingMode: ddbtypes.BillingModePayPerRequest,
		AttributeDefinitions: []ddbtypes.AttributeDefinition{
			{AttributeName: aws.String(AttrPK), AttributeType: ddbtypes.ScalarAttributeTypeS},
			{AttributeName: aws.String(AttrSK), AttributeType: ddbtypes.ScalarAttributeTypeS},
		},
		KeySchema: []ddbtypes.KeySchemaElement{
			{AttributeName: aws.String(AttrPK), KeyType: ddbtypes.KeyTypeHash},
			{AttributeName: aws.String(AttrSK), KeyType: ddbtypes.KeyTypeRange},
		},
	})
	if err != nil {
		return fmt.Errorf("CreateTable(%s): %w", tableName, err)
	}

	waiter := dynamodb.NewTableExistsWaiter(api)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(tableName)}, 2*time.Minute); err != nil {
		return fmt.Errorf("wait for table %s: %w", tableName, err)
	}
	return nil
}
