package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lysyi3m/job-comb/app/jobs"
	"github.com/redis/go-redis/v9"
)

type recordingDeliverer struct {
	messages []jobs.Message
	err      error
}

func (r *recordingDeliverer) Deliver(ctx context.Context, msg jobs.Message) error {
	r.messages = append(r.messages, msg)
	return r.err
}

func TestMultiTriesEveryDeliverer(t *testing.T) {
	failing := &recordingDeliverer{err: errors.New("boom")}
	ok := &recordingDeliverer{}

	err := Multi{failing, ok}.Deliver(context.Background(), jobs.Message{Title: "t"})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Errorf("Expected the failure to be reported, got %v", err)
	}
	if len(ok.messages) != 1 {
		t.Error("Expected later deliverers to run after a failure")
	}
}

func TestDialogFallsBackOffDarwin(t *testing.T) {
	fallback := &recordingDeliverer{}
	d := NewDialogDeliverer("/tmp/postings.xlsx")
	d.goos = "linux"
	d.fallback = fallback
	d.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		t.Fatal("Expected no command off darwin")
		return nil, nil
	}

	if err := d.Deliver(context.Background(), jobs.Message{Title: "No new postings"}); err != nil {
		t.Fatal(err)
	}
	if len(fallback.messages) != 1 {
		t.Error("Expected the message to reach the fallback")
	}
}

func TestDialogScript(t *testing.T) {
	var gotName string
	var gotArgs []string

	d := NewDialogDeliverer(`/Users/me/Documents/"jobs".xlsx`)
	d.goos = "darwin"
	d.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return nil, nil
	}

	msg := jobs.Message{Title: "New postings found", Body: "Found 2 new postings\nBy category:", HasNew: true, NewCount: 2}
	if err := d.Deliver(context.Background(), msg); err != nil {
		t.Fatal(err)
	}

	if gotName != "osascript" || len(gotArgs) != 2 || gotArgs[0] != "-e" {
		t.Fatalf("Unexpected command %s %v", gotName, gotArgs)
	}

	script := gotArgs[1]
	for _, want := range []string{
		`with title "New postings found"`,
		`Found 2 new postings\nBy category:`,
		`default button "Open export"`,
		`\"jobs\".xlsx`,
	} {
		if !strings.Contains(script, want) {
			t.Errorf("Expected script to contain %q:\n%s", want, script)
		}
	}

	msg.HasNew = false
	if err := d.Deliver(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(gotArgs[1], "open") {
		t.Error("Expected no open action without new postings")
	}
}

func TestDialogReportsCommandFailure(t *testing.T) {
	d := NewDialogDeliverer("")
	d.goos = "darwin"
	d.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("syntax error"), errors.New("exit status 1")
	}

	err := d.Deliver(context.Background(), jobs.Message{Title: "t"})
	if err == nil || !strings.Contains(err.Error(), "syntax error") {
		t.Errorf("Expected command output in the error, got %v", err)
	}
}

func TestRedisDelivererPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := rdb.Subscribe(ctx, "runs")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	d := NewRedisDeliverer(rdb, "runs")
	d.now = func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) }

	if err := d.Deliver(ctx, jobs.Message{Title: "New postings found", HasNew: true, NewCount: 3, Total: 10}); err != nil {
		t.Fatal(err)
	}

	received, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatal(err)
	}

	var got event
	if err := json.Unmarshal([]byte(received.Payload), &got); err != nil {
		t.Fatal(err)
	}
	if got.Title != "New postings found" || got.NewCount != 3 || got.Total != 10 || !got.HasNew {
		t.Errorf("Unexpected event %+v", got)
	}
}

func TestRedisDelivererDefaultChannel(t *testing.T) {
	d := NewRedisDeliverer(nil, "")
	if d.channel != DefaultChannel {
		t.Errorf("Expected default channel, got %s", d.channel)
	}
}
