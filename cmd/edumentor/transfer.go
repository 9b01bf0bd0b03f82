package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pavelanni/edumentor/internal/export"
	appI18n "github.com/pavelanni/edumentor/internal/i18n"
	"github.com/pavelanni/edumentor/internal/model"
)

const (
	formatChatCSV = "chat-csv"
	formatQuizCSV = "quiz-csv"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the active session as CSV, JSON or YAML",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.StringP("format", "f", "", "Output format (json, yaml, chat-csv, quiz-csv); guessed from --output when empty")
	f.StringP("output", "o", "-", "Output file path (- for stdout); a directory with --all")
	f.String("session", "", "Session id or name (default: the active session)")
	f.Bool("all", false, "Export every session as one json or yaml document per file")
	return cmd
}

// exportFormat resolves the output format from the flag or the output path.
func exportFormat(format, output string) string {
	if format != "" {
		return strings.ToLower(format)
	}
	if strings.HasSuffix(strings.ToLower(output), ".csv") {
		return formatChatCSV
	}
	return export.FormatFromPath(output)
}

func runExport(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()
	v := a.v
	ctx := cmd.Context()

	outPath := v.GetString("output")
	format := exportFormat(v.GetString("format"), outPath)

	if v.GetBool("all") {
		return exportAll(cmd, a, format, outPath)
	}

	var sess model.Session
	if ref := v.GetString("session"); ref != "" {
		sess, err = a.resolve(cmd, ref)
	} else {
		sess, err = a.activeSession(cmd, false)
	}
	if err != nil {
		return err
	}

	var data []byte
	switch format {
	case formatChatCSV:
		data, err = export.CSV(export.ChatRecords(sess.Messages, time.Now()))
	case formatQuizCSV:
		if sess.LastQuizResult == nil {
			return errors.New(appI18n.T(ctx, "NothingToExport"))
		}
		data, err = export.CSV(export.QuizRecords(sess.LastQuizResult))
	default:
		var exp export.Exporter
		exp, err = export.NewExporter(format)
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		err = exp.Export(a.tutor.Export(sess), &buf)
		data = buf.Bytes()
	}
	if err != nil {
		return fmt.Errorf("export session: %w", err)
	}
	if len(data) == 0 {
		return errors.New(appI18n.T(ctx, "NothingToExport"))
	}

	if outPath == "" || outPath == "-" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), appI18n.Td(ctx, "Exported", map[string]any{"Path": outPath}))
	return nil
}

// exportAll writes one document per session into dir, named by session id.
func exportAll(cmd *cobra.Command, a *app, format, dir string) error {
	exp, err := export.NewExporter(format)
	if err != nil {
		return err
	}
	if dir == "" || dir == "-" {
		return errors.New("--all needs an output directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	docs, err := a.store.ExportAllSessions()
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}
	for id, doc := range docs {
		path := filepath.Join(dir, id+"."+exp.Extension())
		if err := writeDocument(exp, doc, path); err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), appI18n.Td(cmd.Context(), "Exported", map[string]any{"Path": path}))
	}
	return nil
}

func writeDocument(exp export.Exporter, doc model.SessionExport, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()
	if err := exp.Export(doc, f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load a JSON or YAML session document into the active session",
		Long: `Replaces the active session's transcript and knowledge base with the document's.
The last quiz result is replaced only when the document has one. Use - to read stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}
	cmd.Flags().StringP("format", "f", "", "Document format (json, yaml); guessed from the file name when empty")
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	path := args[0]
	format := a.v.GetString("format")
	if format == "" {
		format = export.FormatFromPath(path)
	}

	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	doc, err := export.Import(r, format)
	if err != nil {
		var ie *export.ImportError
		if errors.As(err, &ie) {
			return errors.New(appI18n.Td(ctx, "ImportFailed", map[string]any{"Error": ie.Err.Error()}))
		}
		return err
	}

	sess, err := a.activeSession(cmd, true)
	if err != nil {
		return err
	}
	sess = a.tutor.Import(sess, doc)
	if err := a.store.SaveSession(&sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), appI18n.T(ctx, "ImportOK"))
	return nil
}
