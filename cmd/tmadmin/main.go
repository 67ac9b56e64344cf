package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/themastersacademy/tm-admin-sub000/internal/handler"
	appI18n "github.com/themastersacademy/tm-admin-sub000/internal/i18n"
	"github.com/themastersacademy/tm-admin-sub000/internal/model"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("error reading .env file", "error", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tmadmin",
		Short: "Exam authoring and publishing service",
	}

	serve := serveCmd()
	root.AddCommand(serve, lambdaCmd(), publishCmd(), unpublishCmd(), exportCmd(), importCmd(), migrateCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `tmadmin --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

// addStoreFlags registers the flags every command that touches storage needs.
func addStoreFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("backend", "sqlite", "Document store backend (sqlite, dynamodb)")
	f.String("db", "tmadmin.db", "SQLite database path")
	f.String("exam-table", "tm-admin-exams", "Table holding exams, exam groups and batch junctions")
	f.String("library-table", "tm-admin-questions", "Table holding question documents")
	f.String("aws-region", "ap-south-1", "AWS region")
	f.String("dynamodb-endpoint", "", "Custom DynamoDB endpoint (e.g. DynamoDB Local)")
	f.String("blob-backend", "dir", "Object store backend (dir, s3)")
	f.String("blob-dir", "blobs", "Directory for exam blobs when blob-backend=dir")
	f.String("bucket", "", "S3 bucket for exam blobs")
	f.String("s3-endpoint", "", "Custom S3 endpoint for S3-compatible stores")
	f.String("library", "docstore", "Question library backend (docstore, mongo)")
	f.String("mongo-uri", "", "MongoDB connection string when library=mongo")
	f.String("mongo-db", "qb", "MongoDB database name")
	f.String("mongo-collection", "questions", "MongoDB collection holding questions")
	f.String("events-queue-url", "", "SQS queue URL for exam lifecycle events (empty disables)")
	f.String("redis-addr", "", "Redis address for the live exam index (empty disables)")
	f.StringP("lang", "l", "en", "Message language (en, hi)")
	addLogFlags(cmd)
}

func addHTTPFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("base-path", "", "URL prefix for the API (e.g. /api)")
	f.StringSlice("cors-origins", nil, "Origins allowed to call the API (repeatable)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP admin API",
		RunE:  runServe,
	}
	cmd.Flags().StringP("addr", "a", ":8080", "HTTP listen address")
	addStoreFlags(cmd)
	addHTTPFlags(cmd)
	return cmd
}

func lambdaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lambda",
		Short: "Serve API Gateway proxy events on AWS Lambda",
		RunE:  runLambda,
	}
	addStoreFlags(cmd)
	addHTTPFlags(cmd)
	return cmd
}

func examIDCmd(use, short string, run func(*cobra.Command, []string) error) *cobra.Command {
	cmd := &cobra.Command{Use: use, Short: short, RunE: run}
	cmd.Flags().String("exam-id", "", "Exam identifier (required)")
	_ = cmd.MarkFlagRequired("exam-id")
	addStoreFlags(cmd)
	return cmd
}

func publishCmd() *cobra.Command {
	return examIDCmd("publish", "Make an exam live", runPublish)
}

func unpublishCmd() *cobra.Command {
	return examIDCmd("unpublish", "Take a live exam down", runUnpublish)
}

func exportCmd() *cobra.Command {
	cmd := examIDCmd("export", "Write the blob a live exam serves as JSON", runExport)
	cmd.Flags().StringP("output", "o", "-", "Output file path (- for stdout)")
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-questions",
		Short: "Load question documents from JSON files into the library",
		RunE:  runImport,
	}
	cmd.Flags().StringSliceP("questions", "q", nil, "Paths to questions JSON files (repeatable)")
	_ = cmd.MarkFlagRequired("questions")
	addStoreFlags(cmd)
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the document store tables",
		RunE:  runMigrate,
	}
	addStoreFlags(cmd)
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("TMADMIN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("tmadmin")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/tmadmin")
	v.AddConfigPath("/etc/tmadmin")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// start runs the steps shared by every command: logging, config, i18n and
// the storage wiring.
func start(cmd *cobra.Command) (*viper.Viper, *app, error) {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return nil, nil, fmt.Errorf("init i18n: %w", err)
	}
	a, err := buildApp(cmd.Context(), v)
	if err != nil {
		return nil, nil, err
	}
	return v, a, nil
}

func newRouter(v *viper.Viper, a *app) (http.Handler, error) {
	h, err := handler.New(a.svc)
	if err != nil {
		return nil, fmt.Errorf("create handler: %w", err)
	}
	return handler.NewRouter(h, handler.RouterOptions{
		Lang:        v.GetString("lang"),
		CORSOrigins: v.GetStringSlice("cors-origins"),
		BasePath:    v.GetString("base-path"),
	}), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	v, a, err := start(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	router, err := newRouter(v, a)
	if err != nil {
		return err
	}

	addr := v.GetString("addr")
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-cmd.Context().Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("starting server",
		"addr", addr,
		"backend", v.GetString("backend"),
		"blob_backend", v.GetString("blob-backend"),
		"library", v.GetString("library"),
		"lang", v.GetString("lang"),
		"base_path", v.GetString("base-path"),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func runLambda(cmd *cobra.Command, _ []string) error {
	v, a, err := start(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	router, err := newRouter(v, a)
	if err != nil {
		return err
	}
	slog.Info("starting lambda handler", "backend", v.GetString("backend"))
	lambda.Start(handler.Lambda(router))
	return nil
}

// printResult writes an envelope to stdout and turns a failed one into an error.
func printResult(res model.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	if !res.Success {
		return errors.New(res.Message)
	}
	return nil
}

func runPublish(cmd *cobra.Command, _ []string) error {
	v, a, err := start(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.svc.MarkExamAsLive(cmd.Context(), v.GetString("exam-id"))
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return printResult(res)
}

func runUnpublish(cmd *cobra.Command, _ []string) error {
	v, a, err := start(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.svc.MakeExamUnlive(cmd.Context(), v.GetString("exam-id"))
	if err != nil {
		return fmt.Errorf("unpublish: %w", err)
	}
	return printResult(res)
}

func runExport(cmd *cobra.Command, _ []string) error {
	v, a, err := start(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	res, err := a.svc.LivePointer(ctx, v.GetString("exam-id"))
	if err != nil {
		return fmt.Errorf("read live pointer: %w", err)
	}
	if !res.Success {
		return errors.New(res.Message)
	}
	ptr := res.Data.(model.LivePointer)
	data, err := a.blobs.Get(ctx, ptr.BlobBucketKey)
	if err != nil {
		return fmt.Errorf("read blob %s: %w", ptr.BlobBucketKey, err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	slog.Info("exported exam blob", "exam_id", ptr.ExamID, "version", ptr.Version, "key", ptr.BlobBucketKey)
	return nil
}

func runImport(cmd *cobra.Command, _ []string) error {
	v, a, err := start(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	return importQuestions(cmd.Context(), a, v.GetStringSlice("questions"))
}

// importQuestions loads each file into the library. A file whose content hash
// matches the last import is skipped.
func importQuestions(ctx context.Context, a *app, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := a.imports.Hash(ctx, path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash {
			slog.Info("questions file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("questions file changed since last import, replacing its questions", "path", path)
		}

		var questions []model.QuestionDocument
		if err := json.Unmarshal(data, &questions); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		for _, q := range questions {
			if err := a.lib.Put(ctx, q); err != nil {
				return fmt.Errorf("store question %q from %s: %w", q.QuestionID, path, err)
			}
		}

		if err := a.imports.Record(ctx, path, hash, len(questions)); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported questions", "path", path, "count", len(questions))
	}
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	v, a, err := start(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.dynamo == nil {
		// The sqlite schema is created when the store opens.
		slog.Info("sqlite schema ready", "db", v.GetString("db"))
		return nil
	}
	for _, table := range []string{v.GetString("exam-table"), v.GetString("library-table")} {
		if err := ensureTable(cmd.Context(), a, table); err != nil {
			return err
		}
	}
	return nil
}
