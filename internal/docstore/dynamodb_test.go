package docstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

// fakeDynamo records requests and replays canned results.
type fakeDynamo struct {
	DynamoAPI

	getOut     *dynamodb.GetItemOutput
	updateIn   *dynamodb.UpdateItemInput
	putIn      *dynamodb.PutItemInput
	transactIn *dynamodb.TransactWriteItemsInput
	batchOuts  []*dynamodb.BatchGetItemOutput
	batchCalls int
	err        error
}

func (f *fakeDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return f.getOut, f.err
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.putIn = in
	return &dynamodb.PutItemOutput{}, f.err
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updateIn = in
	return &dynamodb.UpdateItemOutput{}, f.err
}

func (f *fakeDynamo) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.transactIn = in
	return &dynamodb.TransactWriteItemsOutput{}, f.err
}

func (f *fakeDynamo) BatchGetItem(_ context.Context, _ *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	out := f.batchOuts[f.batchCalls]
	f.batchCalls++
	return out, nil
}

func newFakeDynamo(f *fakeDynamo) *Dynamo {
	d := NewDynamo(f)
	d.retryWait = 0
	return d
}

func TestDynamoGetNotFound(t *testing.T) {
	d := newFakeDynamo(&fakeDynamo{getOut: &dynamodb.GetItemOutput{}})
	var out testDoc
	if err := d.Get(context.Background(), testKey("1"), &out); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDynamoGetDecodesJSONTags(t *testing.T) {
	d := newFakeDynamo(&fakeDynamo{getOut: &dynamodb.GetItemOutput{Item: map[string]ddbtypes.AttributeValue{
		AttrPK:      &ddbtypes.AttributeValueMemberS{Value: "DOC#1"},
		AttrSK:      &ddbtypes.AttributeValueMemberS{Value: "DOCS"},
		"title":     &ddbtypes.AttributeValueMemberS{Value: "hello"},
		"updatedAt": &ddbtypes.AttributeValueMemberN{Value: "1700000000000"},
	}}})
	var out testDoc
	if err := d.Get(context.Background(), testKey("1"), &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out.Title != "hello" || out.UpdatedAt != 1700000000000 {
		t.Errorf("unexpected doc: %+v", out)
	}
}

func TestDynamoUpdateExpression(t *testing.T) {
	f := &fakeDynamo{}
	d := newFakeDynamo(f)
	p := NewPatch().Set("title", "x").Append("tags", []string{"a"}).Remove("questionSection[1]")
	cond := ItemExists().Equal("updatedAt", int64(5))
	if err := d.Update(context.Background(), testKey("1"), p, cond); err != nil {
		t.Fatalf("Update: %v", err)
	}
	upd := aws.ToString(f.updateIn.UpdateExpression)
	for _, want := range []string{"SET", "list_append(if_not_exists(", "REMOVE"} {
		if !strings.Contains(upd, want) {
			t.Errorf("update expression %q missing %q", upd, want)
		}
	}
	c := aws.ToString(f.updateIn.ConditionExpression)
	if !strings.Contains(c, "attribute_exists") || !strings.Contains(c, "AND") {
		t.Errorf("unexpected condition expression %q", c)
	}
	var found bool
	for _, name := range f.updateIn.ExpressionAttributeNames {
		if name == "questionSection" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected questionSection among attribute names, got %v", f.updateIn.ExpressionAttributeNames)
	}
}

func TestDynamoPutEncodesKeyAndTags(t *testing.T) {
	f := &fakeDynamo{}
	d := newFakeDynamo(f)
	if err := d.Put(context.Background(), testKey("1"), testDoc{Title: "t"}, ItemNotExists()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := f.putIn.Item["title"]; !ok {
		t.Errorf("expected json-tagged attribute title, got %v", f.putIn.Item)
	}
	pk, ok := f.putIn.Item[AttrPK].(*ddbtypes.AttributeValueMemberS)
	if !ok || pk.Value != "DOC#1" {
		t.Errorf("unexpected pKey %v", f.putIn.Item[AttrPK])
	}
	if !strings.Contains(aws.ToString(f.putIn.ConditionExpression), "attribute_not_exists") {
		t.Errorf("unexpected condition %q", aws.ToString(f.putIn.ConditionExpression))
	}
}

func TestDynamoConflictTranslation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"conditional check", &ddbtypes.ConditionalCheckFailedException{Message: aws.String("no")}, true},
		{"cancelled on condition", &ddbtypes.TransactionCanceledException{CancellationReasons: []ddbtypes.CancellationReason{
			{Code: aws.String("None")}, {Code: aws.String("ConditionalCheckFailed")},
		}}, true},
		{"cancelled on conflict", &ddbtypes.TransactionCanceledException{CancellationReasons: []ddbtypes.CancellationReason{
			{Code: aws.String("TransactionConflict")},
		}}, true},
		{"throttled", &ddbtypes.ProvisionedThroughputExceededException{Message: aws.String("slow down")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newFakeDynamo(&fakeDynamo{err: tt.err})
			err := d.TransactWrite(context.Background(), []Op{
				PutOp(testKey("1"), testDoc{}, ItemNotExists()),
				DeleteOp(testKey("2"), ItemExists()),
			})
			if got := errors.Is(err, model.ErrConflict); got != tt.conflict {
				t.Errorf("errors.Is(ErrConflict) = %v, want %v (err %v)", got, tt.conflict, err)
			}
			if err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestDynamoTransactItems(t *testing.T) {
	f := &fakeDynamo{}
	d := newFakeDynamo(f)
	ops := []Op{
		PutOp(testKey("1"), testDoc{}, ItemNotExists()),
		UpdateOp(testKey("2"), NewPatch().Set("title", "x"), ItemExists()),
		DeleteOp(testKey("3"), Condition{}),
		CheckOp(testKey("4"), ItemExists()),
	}
	if err := d.TransactWrite(context.Background(), ops); err != nil {
		t.Fatalf("TransactWrite: %v", err)
	}
	items := f.transactIn.TransactItems
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(items))
	}
	if items[0].Put == nil || items[1].Update == nil || items[2].Delete == nil || items[3].ConditionCheck == nil {
		t.Errorf("unexpected item kinds: %+v", items)
	}
	if items[2].Delete.ConditionExpression != nil {
		t.Errorf("unconditional delete carried condition %q", aws.ToString(items[2].Delete.ConditionExpression))
	}
}

func TestDynamoBatchGetRetriesUnprocessed(t *testing.T) {
	item := func(id string) map[string]ddbtypes.AttributeValue {
		return map[string]ddbtypes.AttributeValue{
			AttrPK:  &ddbtypes.AttributeValueMemberS{Value: "DOC#" + id},
			AttrSK:  &ddbtypes.AttributeValueMemberS{Value: "DOCS"},
			"title": &ddbtypes.AttributeValueMemberS{Value: id},
		}
	}
	f := &fakeDynamo{batchOuts: []*dynamodb.BatchGetItemOutput{
		{
			Responses: map[string][]map[string]ddbtypes.AttributeValue{"t": {item("a")}},
			UnprocessedKeys: map[string]ddbtypes.KeysAndAttributes{
				"t": {Keys: []map[string]ddbtypes.AttributeValue{dynamoKey(testKey("b"))}},
			},
		},
		{Responses: map[string][]map[string]ddbtypes.AttributeValue{"t": {item("b")}}},
	}}
	d := newFakeDynamo(f)

	docs, err := d.BatchGet(context.Background(), []Key{testKey("a"), testKey("b"), testKey("missing")})
	if err != nil {
		t.Fatalf("BatchGet: %v", err)
	}
	if f.batchCalls != 2 {
		t.Errorf("expected 2 calls, got %d", f.batchCalls)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
	var out testDoc
	if err := docs[1].Decode(&out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Title != "b" || docs[1].Key != testKey("b") {
		t.Errorf("unexpected doc %+v at %v", out, docs[1].Key)
	}
}
