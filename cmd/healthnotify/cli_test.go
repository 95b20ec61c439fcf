package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/healthnotify/internal/model"
	"github.com/dukerupert/healthnotify/internal/session"
)

func executeCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HEALTHNOTIFY_LOG_LEVEL", "error")

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return stdout.String(), err
}

const records = `
{"id": 1, "title": "Campaign Approved", "vaccinationFormId": 42, "createdAt": "2026-03-10T08:00:00"}
{"id": 2, "title": "Chiến dịch đã hoàn thành", "createdAt": "2026-03-10T09:00:00"}
{"id": 3, "title": "Yêu cầu hoàn thành chiến dịch", "notificationType": "COMPLETION_REQUEST", "campaignCompletionRequestId": 7, "createdAt": "2026-03-10T07:00:00"}
`

func TestClassifyNDJSON(t *testing.T) {
	stdout, err := executeCLI(t, records, "classify")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "#2")
	assert.Contains(t, lines[0], "status-update")
	assert.Contains(t, lines[1], "Chiến dịch được phê duyệt")
	assert.Contains(t, lines[1], "{unread,action}")
	assert.Contains(t, lines[2], "completion-request")
}

func TestClassifyJSONArrayOutput(t *testing.T) {
	input := `[{"id": 5, "title": "Medication Request Rejected", "medicationRequestId": 3}]`

	stdout, err := executeCLI(t, input, "classify", "--json")
	require.NoError(t, err)

	var n model.DomainNotification
	require.NoError(t, json.Unmarshal([]byte(stdout), &n))
	assert.Equal(t, model.TypeMedication, n.Type)
	assert.Equal(t, model.PriorityHigh, n.Priority)
	assert.Equal(t, "Yêu cầu dùng thuốc bị từ chối", n.Title)
}

func TestClassifyActionRequiredFilter(t *testing.T) {
	stdout, err := executeCLI(t, records, "classify", "--action-required", "--json")
	require.NoError(t, err)

	var ids []int64
	sc := bufio.NewScanner(strings.NewReader(stdout))
	for sc.Scan() {
		var n model.DomainNotification
		require.NoError(t, json.Unmarshal(sc.Bytes(), &n))
		assert.True(t, n.ActionRequired)
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []int64{1, 3}, ids)
}

func TestClassifyEmptyInput(t *testing.T) {
	stdout, err := executeCLI(t, "  \n", "classify")
	require.NoError(t, err)
	assert.Empty(t, stdout)
}

func TestClassifyRejectsMalformedInput(t *testing.T) {
	_, err := executeCLI(t, `{"id": "x"}`, "classify")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode notification 1")
}

func TestRejectsUnsupportedLocale(t *testing.T) {
	_, err := executeCLI(t, "", "classify", "--locale", "fr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported locale")
}

func TestClassifyReadsZonelessTimestampsInServerZone(t *testing.T) {
	input := `{"id": 9, "title": "Xin chào", "createdAt": "2026-03-10T09:59:00"}`

	stdout, err := executeCLI(t, input, "classify", "--json", "--server-timezone", "Asia/Ho_Chi_Minh")
	require.NoError(t, err)

	var n model.DomainNotification
	require.NoError(t, json.Unmarshal([]byte(stdout), &n))
	assert.True(t, n.CreatedAt.Equal(time.Date(2026, 3, 10, 2, 59, 0, 0, time.UTC)), "got %v", n.CreatedAt)
}

func TestRejectsUnknownServerTimezone(t *testing.T) {
	_, err := executeCLI(t, "", "classify", "--server-timezone", "Nowhere/Town")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server timezone")
}

func TestRejectsMissingEnvFile(t *testing.T) {
	_, err := executeCLI(t, "", "classify", "--env-file", "does-not-exist.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load env file")
}

func TestSendFailsWithoutServer(t *testing.T) {
	_, err := executeCLI(t, "", "send", "--push-url", "ws://127.0.0.1:1/ws", "--token", "tok", "/app/ping", "{}")
	require.Error(t, err)

	var cerr *session.ConnectError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, session.KindTransport, cerr.Kind)
}

func TestSendRequiresArguments(t *testing.T) {
	_, err := executeCLI(t, "", "send", "/app/ping")
	require.Error(t, err)
}
