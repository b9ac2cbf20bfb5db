package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yndnr/credvault/internal/core/domain"
)

const testPassphrase = "correct horse battery staple"

// testVault points the CLI at a temporary home with cheap key derivation
// and returns the vault path.
func testVault(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("CREDVAULT_KDF_TIME", "1")
	t.Setenv("CREDVAULT_KDF_MEMORY_KIB", "8192")
	t.Setenv("CREDVAULT_KDF_THREADS", "1")
	t.Setenv("CREDVAULT_SESSION_UNLOCK_RATE", "0")
	t.Setenv("CREDVAULT_VAULT_WATCH", "false")
	t.Setenv(PassphraseEnv, testPassphrase)
	return filepath.Join(dir, "v.db")
}

// run executes one CLI invocation with the given stdin.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	app := App()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader(stdin)
	err := app.Run(append([]string{"credvault"}, args...))
	return out.String(), err
}

func mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out, err := run(t, stdin, args...)
	if err != nil {
		t.Fatalf("credvault %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func initVault(t *testing.T) string {
	t.Helper()
	path := testVault(t)
	out := mustRun(t, "", "--vault", path, "init")
	if !strings.Contains(out, "created vault "+path) {
		t.Fatalf("init output = %q", out)
	}
	return path
}

func TestCRUD(t *testing.T) {
	path := initVault(t)

	out := mustRun(t, "hunter2\n", "--vault", path, "add", "--label", "github", "--username", "octocat", "--password-stdin")
	if out != "added record 1\n" {
		t.Fatalf("add output = %q", out)
	}

	out = mustRun(t, "", "--vault", path, "list")
	if !strings.Contains(out, "LABEL") || !strings.Contains(out, "github") {
		t.Errorf("list output = %q", out)
	}

	out = mustRun(t, "", "--vault", path, "get", "1")
	if !strings.Contains(out, "octocat") || !strings.Contains(out, masked) || strings.Contains(out, "hunter2") {
		t.Errorf("get output should mask the password:\n%s", out)
	}
	if out = mustRun(t, "", "--vault", path, "get", "1", "--show"); !strings.Contains(out, "hunter2") {
		t.Errorf("get --show output = %q", out)
	}
	if out = mustRun(t, "", "--vault", path, "get", "1", "--field", "password"); out != "hunter2\n" {
		t.Errorf("get --field password = %q", out)
	}

	if out = mustRun(t, "", "--vault", path, "update", "1", "--username", "bob"); out != "updated record 1\n" {
		t.Errorf("update output = %q", out)
	}
	var cred credentialView
	if err := json.Unmarshal([]byte(mustRun(t, "", "--vault", path, "-o", "json", "get", "1")), &cred); err != nil {
		t.Fatalf("decode get output: %v", err)
	}
	if cred.Username != "bob" || cred.Label != "github" || cred.Password != masked {
		t.Errorf("after update got %+v", cred)
	}

	if out = mustRun(t, "", "--vault", path, "delete", "1"); out != "deleted record 1\n" {
		t.Errorf("delete output = %q", out)
	}
	if _, err := run(t, "", "--vault", path, "get", "1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("get deleted record error = %v, want NotFound", err)
	}
}

func TestInit_Exists(t *testing.T) {
	path := initVault(t)
	if _, err := run(t, "", "--vault", path, "init"); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("second init error = %v, want AlreadyExists", err)
	}
}

func TestInfo(t *testing.T) {
	path := initVault(t)
	t.Setenv(PassphraseEnv, "")

	var v vaultView
	if err := json.Unmarshal([]byte(mustRun(t, "", "--vault", path, "-o", "json", "info")), &v); err != nil {
		t.Fatalf("decode info output: %v", err)
	}
	if v.Path != path || v.KDFMemory != 8192 || v.Records != 0 {
		t.Errorf("info = %+v", v)
	}
}

func TestPassphraseSources(t *testing.T) {
	path := initVault(t)

	t.Setenv(PassphraseEnv, "wrong passphrase")
	if _, err := run(t, "", "--vault", path, "list"); !errors.Is(err, domain.ErrWrongPassphrase) {
		t.Errorf("wrong passphrase error = %v", err)
	}

	t.Setenv(PassphraseEnv, "")
	if _, err := run(t, "", "--vault", path, "list"); !errors.Is(err, errNoPassphrase) {
		t.Errorf("missing passphrase error = %v", err)
	}

	file := filepath.Join(t.TempDir(), "pass")
	if err := os.WriteFile(file, []byte(testPassphrase+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	mustRun(t, "", "--vault", path, "--passphrase-file", file, "list")

	empty := filepath.Join(t.TempDir(), "empty")
	if err := os.WriteFile(empty, []byte("\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "", "--vault", path, "--passphrase-file", empty, "list"); err == nil {
		t.Error("empty passphrase file should fail")
	}
}

func TestListLocked(t *testing.T) {
	path := initVault(t)
	mustRun(t, "pw\n", "--vault", path, "add", "--label", "mail", "--password-stdin")

	t.Setenv(PassphraseEnv, "")
	var rows []recordView
	if err := json.Unmarshal([]byte(mustRun(t, "", "--vault", path, "-o", "json", "list", "--locked")), &rows); err != nil {
		t.Fatalf("decode list output: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != 1 || rows[0].Label != "mail" {
		t.Errorf("list --locked = %+v", rows)
	}
}

func TestAdd_PasswordSources(t *testing.T) {
	path := initVault(t)

	tests := []struct {
		name string
		args []string
		want error
	}{
		{"no source", []string{"add", "--label", "x"}, errNoPassword},
		{"short generate", []string{"add", "--label", "x", "--generate", "2"}, domain.ErrInvalidParameters},
		{"both sources", []string{"add", "--label", "x", "--generate", "20", "--password-stdin"}, domain.ErrInvalidParameters},
		{"empty label", []string{"add", "--label", "", "--generate", "20"}, domain.ErrInvalidParameters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, "", append([]string{"--vault", path}, tt.args...)...)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	mustRun(t, "", "--vault", path, "add", "--label", "gen", "--generate", "24", "--no-symbols")
	pw := strings.TrimSuffix(mustRun(t, "", "--vault", path, "get", "1", "--field", "password"), "\n")
	if len(pw) != 24 || strings.ContainsAny(pw, "!#$%&*+-=?@^_~") {
		t.Errorf("generated password = %q", pw)
	}
}

func TestBadRecordID(t *testing.T) {
	path := initVault(t)
	for _, arg := range [][]string{{"get", "abc"}, {"get", "0"}, {"get"}, {"delete", "1x"}} {
		if _, err := run(t, "", append([]string{"--vault", path}, arg...)...); !errors.Is(err, domain.ErrInvalidParameters) {
			t.Errorf("%v error = %v, want InvalidParameters", arg, err)
		}
	}
	if _, err := run(t, "", "--vault", path, "update", "1"); !errors.Is(err, domain.ErrInvalidParameters) {
		t.Errorf("update without fields error = %v", err)
	}
}

func TestGenerate(t *testing.T) {
	testVault(t)

	out := mustRun(t, "", "generate", "-n", "32")
	if len(strings.TrimSuffix(out, "\n")) != 32 {
		t.Errorf("generate -n 32 = %q", out)
	}

	var g generatedView
	if err := json.Unmarshal([]byte(mustRun(t, "", "-o", "json", "generate")), &g); err != nil {
		t.Fatalf("decode generate output: %v", err)
	}
	if g.Length != 20 || len(g.Password) != 20 || g.Score < 0 || g.Score > 4 {
		t.Errorf("generate json = %+v", g)
	}

	if _, err := run(t, "", "generate", "-n", "3"); !errors.Is(err, domain.ErrInvalidParameters) {
		t.Errorf("generate -n 3 error = %v", err)
	}
}

func TestAudit(t *testing.T) {
	path := initVault(t)
	mustRun(t, "pw\n", "--vault", path, "add", "--label", "mail", "--password-stdin")
	mustRun(t, "", "--vault", path, "get", "1")

	t.Setenv(PassphraseEnv, "")
	if out := mustRun(t, "", "--vault", path, "audit", "verify"); out != "audit log intact: 7 entries\n" {
		t.Errorf("audit verify = %q", out)
	}

	var entries []auditView
	if err := json.Unmarshal([]byte(mustRun(t, "", "--vault", path, "-o", "json", "audit", "list", "--limit", "3")), &entries); err != nil {
		t.Fatalf("decode audit list: %v", err)
	}
	var events []string
	for _, e := range entries {
		events = append(events, e.Event)
	}
	if got := strings.Join(events, ","); got != "vault.unlock,record.get,vault.lock" {
		t.Errorf("audit events = %s", got)
	}
	if entries[1].Record != "1" || entries[1].Outcome != "success" {
		t.Errorf("record.get entry = %+v", entries[1])
	}
}

func TestConfigAndVersion(t *testing.T) {
	testVault(t)

	out := mustRun(t, "", "--log-level", "error", "config", "show")
	for _, want := range []string{"memory_kib: 8192", "idle_timeout: 5m0s", "level: error"} {
		if !strings.Contains(out, want) {
			t.Errorf("config show missing %q:\n%s", want, out)
		}
	}

	out = mustRun(t, "", "config", "path")
	if !strings.HasSuffix(out, filepath.Join(".credvault", "config.yaml")+"\n") {
		t.Errorf("config path = %q", out)
	}

	if out = mustRun(t, "", "version"); !strings.HasPrefix(out, "credvault ") {
		t.Errorf("version = %q", out)
	}
}

func TestSetupErrors(t *testing.T) {
	testVault(t)

	if _, err := run(t, "", "-o", "xml", "version"); err == nil {
		t.Error("unknown output format should fail")
	}
	if _, err := run(t, "", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "version"); err == nil {
		t.Error("missing explicit config file should fail")
	}
	t.Setenv("CREDVAULT_KDF_MEMORY_KIB", "16")
	if _, err := run(t, "", "version"); err == nil {
		t.Error("kdf settings below the floor should fail")
	}
}
