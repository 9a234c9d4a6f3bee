package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/lysyi3m/job-comb/app/jobs"
)

const (
	dialogTimeout    = 120 * time.Second
	openButton       = "Open export"
	laterButton      = "Later"
	acknowledgeLabel = "OK"
)

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// DialogDeliverer shows a modal dialog on macOS through osascript. On any
// other platform it logs the message instead.
type DialogDeliverer struct {
	exportPath string
	goos       string
	run        commandRunner
	fallback   Deliverer
}

func NewDialogDeliverer(exportPath string) *DialogDeliverer {
	return &DialogDeliverer{
		exportPath: exportPath,
		goos:       runtime.GOOS,
		run:        runCommand,
		fallback:   NewLogDeliverer(),
	}
}

func (d *DialogDeliverer) Deliver(ctx context.Context, msg jobs.Message) error {
	if d.goos != "darwin" {
		return d.fallback.Deliver(ctx, msg)
	}

	ctx, cancel := context.WithTimeout(ctx, dialogTimeout)
	defer cancel()

	output, err := d.run(ctx, "osascript", "-e", d.script(msg))
	if err != nil {
		if ctx.Err() != nil {
			slog.Warn("Notification dialog timed out", "title", msg.Title)
			return nil
		}
		return fmt.Errorf("failed to show notification dialog: %w: %s", err, strings.TrimSpace(string(output)))
	}

	slog.Debug("Notification dialog shown", "title", msg.Title)
	return nil
}

func (d *DialogDeliverer) script(msg jobs.Message) string {
	buttons := fmt.Sprintf(`{"%s"}`, acknowledgeLabel)
	defaultButton := acknowledgeLabel
	action := ""

	if msg.HasNew && d.exportPath != "" {
		buttons = fmt.Sprintf(`{"%s", "%s"}`, laterButton, openButton)
		defaultButton = openButton
		action = fmt.Sprintf(`do shell script "open " & quoted form of "%s"`, appleScriptEscape(d.exportPath))
	}

	var b strings.Builder
	b.WriteString("try\n")
	fmt.Fprintf(&b, "set response to display dialog \"%s\" with title \"%s\" buttons %s default button \"%s\" with icon note\n",
		appleScriptEscape(msg.Body), appleScriptEscape(msg.Title), buttons, defaultButton)
	if action != "" {
		fmt.Fprintf(&b, "if button returned of response is \"%s\" then\n%s\nend if\n", openButton, action)
	}
	b.WriteString("end try\n")
	return b.String()
}

func appleScriptEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(s)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
