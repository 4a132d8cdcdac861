package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0x6d61/fluent"
	"github.com/0x6d61/fluent/header"
	"github.com/0x6d61/fluent/internal/fixture"
	"github.com/0x6d61/fluent/internal/journal"
	"github.com/0x6d61/fluent/internal/report"
)

var sendCmd = &cobra.Command{
	Use:   "send URL",
	Short: "Send an HTTP request and print the response",
	Long: `Send builds a request from the flags, dispatches it through the mock
fixtures (if any) or the network, and prints the response.`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().StringP("request", "X", "", "HTTP method (default GET, or POST with a body)")
	sendCmd.Flags().StringP("data", "d", "", "Raw request body (@file reads a file)")
	sendCmd.Flags().String("json", "", "JSON request body")
	sendCmd.Flags().StringArrayP("form", "F", nil, "Multipart field name=value (name=@file attaches a file)")
	sendCmd.Flags().StringP("user", "u", "", "Basic auth credentials (user:password)")
	sendCmd.Flags().String("tls", "", "TLS version (1.*, 1.0, 1.1, 1.2)")
	sendCmd.Flags().BoolP("insecure", "k", false, "Skip TLS certificate verification")
	sendCmd.Flags().BoolP("location", "L", false, "Follow redirects")
	sendCmd.Flags().Float64("rps", 0, "Maximum requests per second (0 = unlimited)")
	sendCmd.Flags().String("mocks", "", "YAML mock fixture file")
	sendCmd.Flags().Bool("replay", false, "Serve responses recorded in the journal")
	sendCmd.Flags().Bool("ensure-2xx", false, "Fail unless the response status is 2xx")
	sendCmd.Flags().Bool("color", false, "Colorize text output")
}

// sendOptions holds the parsed send flags.
type sendOptions struct {
	url      string
	method   string
	headers  []string
	data     string
	json     string
	form     []string
	user     string
	tls      string
}

func runSend(cmd *cobra.Command, args []string) error {
	// ------------------------------------------------------------------ //
	// 1. Read flags
	// ------------------------------------------------------------------ //
	opts := sendOptions{url: args[0]}
	opts.method, _ = cmd.Flags().GetString("request")
	opts.headers, _ = cmd.Flags().GetStringArray("header")
	opts.data, _ = cmd.Flags().GetString("data")
	opts.json, _ = cmd.Flags().GetString("json")
	opts.form, _ = cmd.Flags().GetStringArray("form")
	opts.user, _ = cmd.Flags().GetString("user")
	opts.tls, _ = cmd.Flags().GetString("tls")

	proxyURL, _ := cmd.Flags().GetString("proxy")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	verbose, _ := cmd.Flags().GetInt("verbose")
	outputPath, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	journalPath, _ := cmd.Flags().GetString("journal")
	insecure, _ := cmd.Flags().GetBool("insecure")
	follow, _ := cmd.Flags().GetBool("location")
	rps, _ := cmd.Flags().GetFloat64("rps")
	mocksPath, _ := cmd.Flags().GetString("mocks")
	replay, _ := cmd.Flags().GetBool("replay")
	ensure2xx, _ := cmd.Flags().GetBool("ensure-2xx")
	useColor, _ := cmd.Flags().GetBool("color")

	if replay && journalPath == "" {
		return fmt.Errorf("--replay requires --journal")
	}

	reporter, err := report.New(format)
	if err != nil {
		return fmt.Errorf("unknown report format %q: %w", format, err)
	}
	if tr, ok := reporter.(*report.TextReporter); ok {
		tr.Verbose = verbose
		tr.Color = useColor
	}

	logger := newLogger(verbose, cmd.ErrOrStderr())

	// ------------------------------------------------------------------ //
	// 2. Context (CTRL+C cancels the request)
	// ------------------------------------------------------------------ //
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	// ------------------------------------------------------------------ //
	// 3. Engine, optionally recorded to the journal
	// ------------------------------------------------------------------ //
	native, err := fluent.NewNativeEngine(fluent.EngineOptions{
		FollowRedirects: follow,
		MaxRPS:          rps,
		Insecure:        insecure,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer native.Close()
	if proxyURL != "" {
		if err := native.SetProxy(proxyURL); err != nil {
			return err
		}
	}
	var engine fluent.Engine = native

	var recorder *journal.Recorder
	var store *journal.SQLiteStore
	if journalPath != "" {
		store, err = journal.NewSQLiteStore(journalPath)
		if err != nil {
			return fmt.Errorf("failed to open journal %q: %w", journalPath, err)
		}
		defer store.Close()
		recorder = journal.NewRecorder(store, logger)
		engine = recorder.Wrap(native)
	}

	client := fluent.New(
		fluent.WithEngine(engine),
		fluent.WithTimeout(timeout),
		fluent.WithLogger(logger),
	)

	// ------------------------------------------------------------------ //
	// 4. Mocks: fixture file and journal replay
	// ------------------------------------------------------------------ //
	if mocksPath != "" {
		f, err := fixture.Load(mocksPath)
		if err != nil {
			return err
		}
		if err := f.Register(client.Dispatcher()); err != nil {
			return err
		}
		logger.Info("mock fixtures loaded", "path", mocksPath, "count", len(f.Mocks))
	}
	if replay {
		n, err := journal.Replay(ctx, store, client.Dispatcher(), 0)
		if err != nil {
			return fmt.Errorf("failed to replay journal: %w", err)
		}
		logger.Info("journal replay registered", "count", n)
	}

	// ------------------------------------------------------------------ //
	// 5. Build and send
	// ------------------------------------------------------------------ //
	req, err := buildRequest(client, opts)
	if err != nil {
		return err
	}

	resp, err := req.Send(ctx)
	if err != nil {
		return err
	}

	// The engine wrapper only sees live traffic.
	if recorder != nil && resp.Mocked() && !replay {
		if _, err := recorder.Record(ctx, resp); err != nil {
			logger.Warn("recording mocked exchange failed", "error", err)
		}
	}

	// ------------------------------------------------------------------ //
	// 6. Output
	// ------------------------------------------------------------------ //
	out := cmd.OutOrStdout()
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file %q: %w", outputPath, err)
		}
		defer f.Close()
		out = f
	}

	if err := reporter.Generate(ctx, resp, out); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if ensure2xx {
		if _, err := resp.Ensure2xx(); err != nil {
			return err
		}
	}
	return nil
}

// buildRequest turns the send flags into a request on client.
func buildRequest(client *fluent.Client, opts sendOptions) (*fluent.Request, error) {
	bodies := 0
	for _, set := range []bool{opts.data != "", opts.json != "", len(opts.form) > 0} {
		if set {
			bodies++
		}
	}
	if bodies > 1 {
		return nil, fmt.Errorf("only one of --data, --json or --form may be given")
	}
	hasBody := bodies == 1

	method := opts.method
	if method == "" {
		method = "GET"
		if hasBody {
			method = "POST"
		}
	}

	req, err := client.Request(method, opts.url)
	if err != nil {
		return nil, err
	}

	fields, err := parseHeaders(opts.headers)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		req = req.AddHeader(f.Name, f.Value)
	}

	if opts.user != "" {
		user, pass, _ := strings.Cut(opts.user, ":")
		req = req.WithBasicAuth(user, pass)
	}

	// An explicit Content-Type header overrides the payload's.
	contentType := req.Header("Content-Type")
	if hasBody && contentType != "" {
		req = req.WithoutHeader("Content-Type")
	}

	switch {
	case opts.data != "":
		data, err := readArg(opts.data)
		if err != nil {
			return nil, err
		}
		if contentType == "" {
			contentType = "application/x-www-form-urlencoded"
		}
		req, err = req.WithRawPayload(data, contentType)
		if err != nil {
			return nil, err
		}
	case opts.json != "":
		if !json.Valid([]byte(opts.json)) {
			return nil, fmt.Errorf("--json is not valid JSON")
		}
		if contentType == "" {
			contentType = "application/json"
		}
		req, err = req.WithRawPayload([]byte(opts.json), contentType)
		if err != nil {
			return nil, err
		}
	case len(opts.form) > 0:
		for _, field := range opts.form {
			req, err = addFormField(req, field)
			if err != nil {
				return nil, err
			}
		}
	}

	if opts.tls != "" {
		req, err = req.WithTLS(opts.tls)
		if err != nil {
			return nil, err
		}
	}
	return req, nil
}

// addFormField adds a "name=value" or "name=@path" multipart field.
func addFormField(req *fluent.Request, field string) (*fluent.Request, error) {
	name, value, ok := strings.Cut(field, "=")
	if !ok || name == "" {
		return nil, fmt.Errorf("invalid form field %q (want name=value)", field)
	}
	if path, isFile := strings.CutPrefix(value, "@"); isFile {
		return req.AddFile(name, path, "", "")
	}
	return req.AddMultipartField(name, []byte(value), "", "")
}

// readArg returns s, or the contents of the file when s is "@path".
func readArg(s string) ([]byte, error) {
	path, isFile := strings.CutPrefix(s, "@")
	if !isFile {
		return []byte(s), nil
	}
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}
	return data, nil
}

// parseHeaders parses header strings (e.g., "X-Custom: value").
func parseHeaders(rawHeaders []string) ([]header.Field, error) {
	fields := make([]header.Field, 0, len(rawHeaders))
	for _, h := range rawHeaders {
		f, ok := header.Parse(h)
		if !ok || f.Name == "" {
			return nil, fmt.Errorf("invalid header %q (want 'Name: value')", h)
		}
		fields = append(fields, f)
	}
	return fields, nil
}
