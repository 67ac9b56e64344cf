package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/themastersacademy/tm-admin-sub000/internal/cache"
	"github.com/themastersacademy/tm-admin-sub000/internal/docstore"
	"github.com/themastersacademy/tm-admin-sub000/internal/exam"
	"github.com/themastersacademy/tm-admin-sub000/internal/library"
	"github.com/themastersacademy/tm-admin-sub000/internal/notify"
	"github.com/themastersacademy/tm-admin-sub000/internal/objstore"
)

// app is the wired service plus the adapters commands use directly.
type app struct {
	svc     *exam.Service
	blobs   objstore.Store
	lib     library.Library
	imports *library.ImportLog
	dynamo  *dynamodb.Client
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

func buildApp(ctx context.Context, v *viper.Viper) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}

	var awsCfg aws.Config
	if v.GetString("backend") == "dynamodb" || v.GetString("blob-backend") == "s3" || v.GetString("events-queue-url") != "" {
		cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(v.GetString("aws-region")))
		if err != nil {
			return fail(fmt.Errorf("load AWS config: %w", err))
		}
		awsCfg = cfg
	}

	var docs docstore.Store
	switch backend := v.GetString("backend"); backend {
	case "sqlite":
		db, err := docstore.NewSQLite(v.GetString("db"))
		if err != nil {
			return fail(fmt.Errorf("open database: %w", err))
		}
		a.closers = append(a.closers, db.Close)
		docs = db
	case "dynamodb":
		endpoint := v.GetString("dynamodb-endpoint")
		a.dynamo = dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		docs = docstore.NewDynamo(a.dynamo)
	default:
		return fail(fmt.Errorf("unknown backend %q", backend))
	}

	switch backend := v.GetString("blob-backend"); backend {
	case "dir":
		dir, err := objstore.NewDir(v.GetString("blob-dir"))
		if err != nil {
			return fail(fmt.Errorf("open blob directory: %w", err))
		}
		a.blobs = dir
	case "s3":
		bucket := v.GetString("bucket")
		if bucket == "" {
			return fail(fmt.Errorf("bucket is required when blob-backend=s3"))
		}
		endpoint := v.GetString("s3-endpoint")
		client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
				o.UsePathStyle = true
			}
		})
		a.blobs = objstore.NewS3(client, bucket)
	default:
		return fail(fmt.Errorf("unknown blob-backend %q", backend))
	}

	libraryTable := v.GetString("library-table")
	a.imports = library.NewImportLog(docs, libraryTable)
	switch kind := v.GetString("library"); kind {
	case "docstore":
		a.lib = library.NewDocLibrary(docs, libraryTable)
	case "mongo":
		uri := v.GetString("mongo-uri")
		if uri == "" {
			return fail(fmt.Errorf("mongo-uri is required when library=mongo"))
		}
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			return fail(fmt.Errorf("connect to mongo: %w", err))
		}
		a.closers = append(a.closers, func() error {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return client.Disconnect(dctx)
		})
		coll := client.Database(v.GetString("mongo-db")).Collection(v.GetString("mongo-collection"))
		a.lib = library.NewMongoLibrary(coll)
	default:
		return fail(fmt.Errorf("unknown library %q", kind))
	}

	var notifier notify.Notifier
	if url := v.GetString("events-queue-url"); url != "" {
		notifier = notify.NewSQS(sqs.NewFromConfig(awsCfg), url, func() int64 { return time.Now().UnixMilli() })
	}

	var live cache.LiveIndex
	if addr := v.GetString("redis-addr"); addr != "" {
		r := cache.NewRedis(addr)
		a.closers = append(a.closers, r.Close)
		live = r
	}

	a.svc = exam.New(exam.Deps{
		Docs:      docs,
		Blobs:     a.blobs,
		Library:   a.lib,
		Notifier:  notifier,
		Live:      live,
		ExamTable: v.GetString("exam-table"),
	})
	slog.Debug("storage wired",
		"backend", v.GetString("backend"),
		"blob_backend", v.GetString("blob-backend"),
		"library", v.GetString("library"),
		"events", notifier != nil,
		"live_index", live != nil,
	)
	return a, nil
}

func ensureTable(ctx context.Context, a *app, table string) error {
	if err := docstore.EnsureTable(ctx, a.dynamo, table); err != nil {
		return fmt.Errorf("ensure table %s: %w", table, err)
	}
	slog.Info("table ready", "table", table)
	return nil
}
