package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// isolatedConfig points the local cache at a temp dir and keeps the rest at defaults
func isolatedConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "database:\n  path: " + filepath.Join(dir, "cache.db") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRoot_RejectsUnknownFormat(t *testing.T) {
	_, err := run(t, "--format", "yaml", "token", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")

	out, err := run(t, "token", "alice", "--ttl", "1h")
	require.NoError(t, err)

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(strings.TrimSpace(out), claims, func(*jwt.Token) (interface{}, error) {
		return []byte("cli-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestToken_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := run(t, "token", "alice")
	assert.Error(t, err)
}

func TestParkedList_Empty(t *testing.T) {
	cfg := isolatedConfig(t)

	out, err := run(t, "--config", cfg, "parked", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "no parked tasks")
}

func TestParkedRequeue_BadSeq(t *testing.T) {
	_, err := run(t, "parked", "requeue", "zero")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "positive integer")
}

func TestImport_Flush(t *testing.T) {
	cfg := isolatedConfig(t)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Title", "Account_ID", "Quarter", "Requested_Amount"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"Partner enablement", "acme", "FY2027-Q1", "1000"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"Bad quarter", "acme", "someday", "5"}))
	book := filepath.Join(t.TempDir(), "plan.xlsx")
	require.NoError(t, f.SaveAs(book))

	out, err := run(t, "--config", cfg, "--format", "json", "import", book, "--as", "alice", "--flush")
	require.NoError(t, err)

	var result struct {
		Created []string `json:"created"`
		Failed  []struct {
			Line int `json:"line"`
		} `json:"failed"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Len(t, result.Created, 1)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 3, result.Failed[0].Line)
}

func TestImport_RequiresActor(t *testing.T) {
	_, err := run(t, "import", "plan.xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "as")
}
