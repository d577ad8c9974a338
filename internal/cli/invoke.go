package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alfredoptarigan/candidate-screener/internal/pipeline"
)

var eventFile string

const invokeLong = `Run one pipeline invocation from a JSON event file and print the response.

resume runs text detection in this process and waits for it.

video only submits the transcription and face-detection jobs. Jobs that are
still queued when the command exits stay in the database and are run by
"screener serve", which also publishes the face-detection completion.

notification runs the completion stage. Transcripts kept in local storage are
read directly, so no server has to be running.`

var invokeCmd = &cobra.Command{
	Use:       "invoke resume|video|notification",
	Short:     "Run one pipeline invocation from a JSON event file and print the response",
	Long:      invokeLong,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"resume", "video", "notification"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return invoke(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(invokeCmd)

	invokeCmd.Flags().StringVarP(&eventFile, "event", "e", "", "path to the event JSON file")
	_ = invokeCmd.MarkFlagRequired("event")
}

func invoke(ctx context.Context, kind string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(eventFile)
	if err != nil {
		return fmt.Errorf("reading event file: %w", err)
	}

	c, err := wire(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize", zap.Error(err))
		return err
	}
	defer c.close()

	c.worker.Start(ctx)
	defer c.worker.Stop()

	resp, err := runEvent(ctx, c, kind, raw)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	fmt.Println(string(out))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("invocation failed with status %d", resp.StatusCode)
	}
	return nil
}

func runEvent(ctx context.Context, c *components, kind string, raw []byte) (pipeline.Response, error) {
	switch kind {
	case "resume", "video":
		var event pipeline.UploadEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return pipeline.Response{}, fmt.Errorf("decoding upload event: %w", err)
		}
		if kind == "resume" {
			return c.resume.Handle(ctx, event), nil
		}
		return c.submission.Handle(ctx, event), nil
	case "notification":
		var event pipeline.NotificationEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			return pipeline.Response{}, fmt.Errorf("decoding notification event: %w", err)
		}
		return c.completion.Handle(ctx, event), nil
	default:
		return pipeline.Response{}, fmt.Errorf("unknown event kind %q", kind)
	}
}
