package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"dcj-cli/internal/apperr"
	"dcj-cli/internal/model"
	"dcj-cli/internal/remote/memauth"
)

// harness runs each command in a fresh App against one shared authority and
// one config/cache directory, the way consecutive shell invocations would.
type harness struct {
	t    *testing.T
	auth *memauth.Authority
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("DCJ_CONFIG_DIR", t.TempDir())
	t.Setenv("DCJ_TOKEN", "")
	t.Setenv("DCJ_API_URL", "")
	return &harness{t: t, auth: memauth.New()}
}

func (h *harness) runCLI(args ...string) (stdout []byte, stderr []byte, err error) {
	h.t.Helper()

	cmd := newRootCmd(&App{authority: h.auth})

	var outBuf bytes.Buffer
	var errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(args)

	e := cmd.Execute()
	return outBuf.Bytes(), errBuf.Bytes(), e
}

// mustRun runs args and decodes the {data, _hints} envelope.
func (h *harness) mustRun(args ...string) map[string]any {
	h.t.Helper()
	out, errOut, err := h.runCLI(args...)
	if err != nil {
		h.t.Fatalf("%v: %v\nstderr: %s", args, err, errOut)
	}
	var env map[string]any
	if err := json.Unmarshal(out, &env); err != nil {
		h.t.Fatalf("%v: decode output: %v\n%s", args, err, out)
	}
	return env
}

func dataMap(t *testing.T, env map[string]any) map[string]any {
	t.Helper()
	m, ok := env["data"].(map[string]any)
	if !ok {
		t.Fatalf("data is %T, want object: %#v", env["data"], env["data"])
	}
	return m
}

func dataList(t *testing.T, env map[string]any) []any {
	t.Helper()
	l, ok := env["data"].([]any)
	if !ok {
		t.Fatalf("data is %T, want array: %#v", env["data"], env["data"])
	}
	return l
}

func texts(items []any, field string) []string {
	var out []string
	for _, it := range items {
		if m, ok := it.(map[string]any); ok {
			s, _ := m[field].(string)
			out = append(out, s)
		}
	}
	return out
}

func TestCLI_WarehouseToFocusFlow(t *testing.T) {
	h := newHarness(t)

	a := dataMap(t, h.mustRun("warehouse", "add", "alpha", "--primary", "work"))
	b := dataMap(t, h.mustRun("warehouse", "add", "beta"))
	child := dataMap(t, h.mustRun("warehouse", "add", "alpha.1", "--parent", a["id"].(string)))
	if got := child["depth"]; got != float64(1) {
		t.Fatalf("child depth: got %v want 1", got)
	}

	// Move beta in front of alpha.
	h.mustRun("warehouse", "reorder", b["id"].(string), "0")
	top := dataList(t, h.mustRun("warehouse", "list"))
	if got, want := texts(top, "taskText"), []string{"beta", "alpha"}; strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("top level after reorder: got %v want %v", got, want)
	}

	// Collapsed by default; expansion survives to the next invocation.
	rows := dataList(t, h.mustRun("warehouse", "tree"))
	if len(rows) != 2 {
		t.Fatalf("collapsed tree rows: got %d want 2", len(rows))
	}
	h.mustRun("warehouse", "expand", a["id"].(string))
	rows = dataList(t, h.mustRun("warehouse", "tree"))
	if len(rows) != 3 {
		t.Fatalf("expanded tree rows: got %d want 3", len(rows))
	}

	ex := dataMap(t, h.mustRun("warehouse", "extract", a["id"].(string)))
	task := ex["task"].(map[string]any)
	if task["taskName"] != "alpha" {
		t.Fatalf("extracted task name: got %v", task["taskName"])
	}
	row := ex["editRow"].(map[string]any)
	if row["currentState"] != string(model.StateNormalStart) {
		t.Fatalf("extracted row state: got %v want normal_start", row["currentState"])
	}

	// The child moved up to top level.
	top = dataList(t, h.mustRun("warehouse", "list"))
	if got := texts(top, "taskText"); strings.Join(got, ",") != "beta,alpha.1" {
		t.Fatalf("top level after extract: got %v", got)
	}

	// A fresh invocation still knows the focus task although it has no records yet.
	show := dataMap(t, h.mustRun("row", "show"))
	if show["state"] != string(model.StateNormalStart) || show["taskId"] != task["id"] {
		t.Fatalf("row show: %#v", show)
	}

	res := dataMap(t, h.mustRun("row", "submit", "a", "--text", "first step"))
	result := res["result"].(map[string]any)
	if result["newState"] != string(model.StateNode) {
		t.Fatalf("submit start: got %v want node", result["newState"])
	}

	recs := dataList(t, h.mustRun("records", "list", "--focus"))
	if len(recs) != 1 {
		t.Fatalf("focus records: got %d want 1", len(recs))
	}

	res = dataMap(t, h.mustRun("row", "archive", "--confirm"))
	if res["result"].(map[string]any)["cleared"] != true {
		t.Fatalf("archive --confirm did not clear the row: %#v", res)
	}
	if _, ok := res["editRow"]; ok {
		t.Fatalf("edit row still present after archive")
	}

	_, errOut, err := h.runCLI("row", "show")
	if !apperr.IsValidation(err) {
		t.Fatalf("row show without focus: got %v", err)
	}
	if !strings.Contains(string(errOut), "no focus task") {
		t.Fatalf("stderr: %q", errOut)
	}
}

func TestCLI_DraftSurvivesInvocations(t *testing.T) {
	h := newHarness(t)

	h.mustRun("tasks", "create", "write report")
	h.mustRun("row", "type", "half a sentence")

	show := dataMap(t, h.mustRun("row", "show"))
	if show["draft"] != "half a sentence" {
		t.Fatalf("draft: got %v", show["draft"])
	}
	if show["state"] != string(model.StateCreativeStart) {
		t.Fatalf("state: got %v want creative_start", show["state"])
	}

	// Submit without --text uses the draft, which is then cleared.
	h.mustRun("row", "submit")
	show = dataMap(t, h.mustRun("row", "show"))
	if show["draft"] != "" {
		t.Fatalf("draft after submit: got %q", show["draft"])
	}
	recs := dataList(t, h.mustRun("records", "list"))
	if got := texts(recs, "recordText"); len(got) != 1 || got[0] != "half a sentence" {
		t.Fatalf("records: %v", got)
	}
}

func TestCLI_RecordsFallBackToCacheWhenOffline(t *testing.T) {
	h := newHarness(t)

	h.mustRun("tasks", "create", "write report")
	h.mustRun("row", "submit", "--text", "intro done")

	h.auth.Fail("ListTasks", &apperr.TransportError{Err: errors.New("connection refused")})
	env := h.mustRun("records", "list", "--focus")
	meta, _ := env["meta"].(map[string]any)
	if meta["cached"] != true {
		t.Fatalf("expected cached records; meta=%#v", meta)
	}
	if got := texts(dataList(t, env), "recordText"); len(got) != 1 || got[0] != "intro done" {
		t.Fatalf("cached records: %v", got)
	}

	// A live listing carries no cached marker.
	meta, _ = h.mustRun("records", "list")["meta"].(map[string]any)
	if _, ok := meta["cached"]; ok {
		t.Fatalf("live listing marked cached: %#v", meta)
	}

	// A rejected token is reported, not papered over.
	h.auth.Fail("ListTasks", &apperr.TransportError{Status: 401, Unauthorized: true})
	if _, _, err := h.runCLI("records", "list"); !apperr.IsTransport(err) {
		t.Fatalf("expected unauthorized error; got %v", err)
	}
}

func TestCLI_RowTwoStepClose(t *testing.T) {
	h := newHarness(t)

	h.mustRun("tasks", "create", "deploy")
	h.mustRun("row", "submit", "--text", "started")

	res := dataMap(t, h.mustRun("row", "terminate"))
	if res["result"].(map[string]any)["newState"] != string(model.StateTerminate) {
		t.Fatalf("terminate: %#v", res)
	}
	res = dataMap(t, h.mustRun("row", "cancel"))
	if res["result"].(map[string]any)["newState"] != string(model.StateNode) {
		t.Fatalf("cancel: %#v", res)
	}

	// Row B in a pending state cancels as well.
	h.mustRun("row", "archive")
	res = dataMap(t, h.mustRun("row", "submit", "b"))
	if res["result"].(map[string]any)["newState"] != string(model.StateNode) {
		t.Fatalf("row b in archive: %#v", res)
	}
}

func TestCLI_SpecialRowTwoPhase(t *testing.T) {
	h := newHarness(t)

	h.mustRun("tasks", "create", "support")
	row := dataMap(t, h.mustRun("special", "raise", "interrupt", "--text", "phone call"))
	id := row["id"].(string)

	rows := dataList(t, h.mustRun("special", "list"))
	if len(rows) != 1 {
		t.Fatalf("visible special rows: got %d want 1", len(rows))
	}

	env := h.mustRun("special", "invoke", id)
	if dataMap(t, env)["committed"] != false {
		t.Fatalf("first phase committed")
	}
	if hints, _ := env["_hints"].([]any); len(hints) == 0 {
		t.Fatalf("expected a --confirm hint")
	}

	out := dataMap(t, h.mustRun("special", "invoke", id, "--confirm"))
	if out["committed"] != true {
		t.Fatalf("--confirm did not commit: %#v", out)
	}
	rec := out["record"].(map[string]any)
	if !strings.Contains(rec["recordText"].(string), "phone call") {
		t.Fatalf("record text: %v", rec["recordText"])
	}
	if rows := dataList(t, h.mustRun("special", "list")); len(rows) != 0 {
		t.Fatalf("row still visible after commit")
	}
}

func TestCLI_Errors(t *testing.T) {
	h := newHarness(t)

	_, errOut, err := h.runCLI("warehouse", "extract", "missing")
	if !apperr.IsNotFound(err) {
		t.Fatalf("extract missing: got %v", err)
	}
	if !strings.Contains(string(errOut), "missing") {
		t.Fatalf("stderr: %q", errOut)
	}

	_, _, err = h.runCLI("warehouse", "reorder", "x", "first")
	if !apperr.IsValidation(err) {
		t.Fatalf("bad index: got %v", err)
	}

	_, _, err = h.runCLI("row", "submit", "c")
	if !apperr.IsValidation(err) {
		t.Fatalf("unknown row: got %v", err)
	}

	h.auth.Fail("ListWarehouseTasks", apperr.ErrBusy)
	_, _, err = h.runCLI("warehouse", "list")
	if !errors.Is(err, apperr.ErrBusy) {
		t.Fatalf("busy: got %v", err)
	}

	_, _, err = h.runCLI("--format", "xml", "keys")
	if err == nil {
		t.Fatalf("expected an error for --format xml")
	}
}

func TestCLI_WarehouseCompleteAndStats(t *testing.T) {
	h := newHarness(t)

	a := dataMap(t, h.mustRun("warehouse", "add", "alpha", "--primary", "home"))
	h.mustRun("warehouse", "add", "beta", "--primary", "home")

	done := dataMap(t, h.mustRun("warehouse", "complete", a["id"].(string)))
	if done["displayStatus"] != string(model.DisplayDimmed) {
		t.Fatalf("complete: got %v want dimmed", done["displayStatus"])
	}

	st := dataMap(t, h.mustRun("warehouse", "stats"))
	if st["totalTasks"] != float64(2) {
		t.Fatalf("totalTasks: %v", st["totalTasks"])
	}
	if byTag := st["tasksByTag"].(map[string]any); byTag["home"] != float64(2) {
		t.Fatalf("tasksByTag: %v", byTag)
	}
}

func TestCLI_SelectThenExtract(t *testing.T) {
	h := newHarness(t)

	a := dataMap(t, h.mustRun("warehouse", "add", "alpha"))
	h.mustRun("warehouse", "select", a["id"].(string))

	// The selection is remembered by the next invocation.
	ex := dataMap(t, h.mustRun("warehouse", "extract"))
	if ex["task"].(map[string]any)["taskName"] != "alpha" {
		t.Fatalf("extract selected: %#v", ex)
	}
	_, _, err := h.runCLI("warehouse", "extract")
	if !apperr.IsValidation(err) {
		t.Fatalf("extract without selection: got %v", err)
	}
}

func TestCLI_Keys(t *testing.T) {
	h := newHarness(t)

	groups := dataList(t, h.mustRun("keys"))
	if len(groups) == 0 {
		t.Fatalf("no key groups")
	}
	first := groups[0].(map[string]any)
	if first["category"] != "Edit row" {
		t.Fatalf("first group: got %v want Edit row", first["category"])
	}

	out, errOut, err := h.runCLI("keys", "--markdown")
	if err != nil {
		t.Fatalf("keys --markdown: %v\n%s", err, errOut)
	}
	for _, want := range []string{"Keyboard shortcuts", "Save to warehouse", "Ctrl+Enter"} {
		if !strings.Contains(string(out), want) {
			t.Fatalf("markdown output missing %q:\n%s", want, out)
		}
	}
}

func TestCLI_ConfigShowHidesToken(t *testing.T) {
	h := newHarness(t)
	t.Setenv("DCJ_TOKEN", "very-secret")

	out, _, err := h.runCLI("config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(string(out), "very-secret") {
		t.Fatalf("token leaked: %s", out)
	}
	var env map[string]any
	if err := json.Unmarshal(out, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env["meta"].(map[string]any)["authenticated"] != true {
		t.Fatalf("authenticated: %v", env["meta"])
	}
}

func TestCLI_Doctor(t *testing.T) {
	h := newHarness(t)

	env := h.mustRun("doctor", "--fail")
	d := dataMap(t, env)
	api := d["api"].(map[string]any)
	if api["reachable"] != true {
		t.Fatalf("api not reachable: %#v", api)
	}
	cache := d["cache"].(map[string]any)
	if cache["integrity"] != "ok" {
		t.Fatalf("cache integrity: %v", cache["integrity"])
	}

	h.auth.Fail("ListTasks", apperr.ErrBusy)
	_, _, err := h.runCLI("doctor", "--fail")
	if !errors.Is(err, errDoctorIssuesFound) {
		t.Fatalf("doctor --fail with a failing api: got %v", err)
	}
}
