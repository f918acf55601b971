package queue

import (
	"testing"
	"time"
)

func TestBackoffDuration(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
	}
	for _, c := range cases {
		got := backoffDuration(5000, c.attempt)
		if got != c.want {
			t.Errorf("backoffDuration(5000, %d) = %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestQueueKeyNaming(t *testing.T) {
	if readyKey("sms") != "queue:sms:ready" {
		t.Errorf("unexpected ready key: %s", readyKey("sms"))
	}
	if scheduledKey("sms") != "queue:sms:scheduled" {
		t.Errorf("unexpected scheduled key: %s", scheduledKey("sms"))
	}
	if completedKey("campaign") != "queue:campaign:completed" {
		t.Errorf("unexpected completed key: %s", completedKey("campaign"))
	}
	if failedKey("campaign") != "queue:campaign:failed" {
		t.Errorf("unexpected failed key: %s", failedKey("campaign"))
	}
	if rateKey("sms") != "ratelimit:sms" {
		t.Errorf("unexpected rate key: %s", rateKey("sms"))
	}
}
