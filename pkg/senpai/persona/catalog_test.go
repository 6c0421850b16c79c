package persona

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const validCard = `{
	"name": "测试看板娘",
	"description": "我是一个用于测试的看板娘。",
	"first_message": "你好，测试员！",
	"example_dialogue": [{"user": "问", "bot": "答"}],
	"main_chat_prompt_template": "角色描述: {persona_description}\n用户信息: {user_info}\n长期记忆:\n{long_term_memory}\n---\n短期记忆 (聊天历史):\n{short_term_memory}\n---\n当前输入:\n{current_input}"
}`

func newTestCatalog(t *testing.T) (*Catalog, string) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "senpai-persona-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	catalog, err := NewCatalog(tmpDir, nil)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	return catalog, tmpDir
}

func writeCard(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(content), 0o644); err != nil {
		t.Fatalf("write card: %v", err)
	}
}

func TestLoad_ValidCard(t *testing.T) {
	catalog, dir := newTestCatalog(t)
	writeCard(t, dir, "miko", validCard)

	p, err := catalog.Load("miko")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.Name != "测试看板娘" {
		t.Errorf("unexpected name: %q", p.Name)
	}
	if len(p.ExampleDialogue) != 1 || p.ExampleDialogue[0].User != "问" {
		t.Errorf("unexpected example dialogue: %+v", p.ExampleDialogue)
	}
}

func TestLoad_NotFound(t *testing.T) {
	catalog, _ := newTestCatalog(t)

	_, err := catalog.Load("ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	catalog, dir := newTestCatalog(t)
	writeCard(t, dir, "broken", `{"name": "x", `)

	_, err := catalog.Load("broken")
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestLoad_MissingRequiredPlaceholder(t *testing.T) {
	catalog, dir := newTestCatalog(t)
	writeCard(t, dir, "partial", `{
		"name": "x",
		"description": "d",
		"main_chat_prompt_template": "{persona_description} {current_input}"
	}`)

	_, err := catalog.Load("partial")
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for missing placeholders, got %v", err)
	}
}

func TestLoad_UnknownPlaceholder(t *testing.T) {
	catalog, dir := newTestCatalog(t)
	writeCard(t, dir, "weird", `{
		"name": "x",
		"description": "d",
		"main_chat_prompt_template": "{persona_description}{user_info}{long_term_memory}{short_term_memory}{current_input}{mystery_slot}"
	}`)

	_, err := catalog.Load("weird")
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for unknown placeholder, got %v", err)
	}
}

func TestLoad_CachesUntilInvalidated(t *testing.T) {
	catalog, dir := newTestCatalog(t)
	writeCard(t, dir, "miko", validCard)

	first, err := catalog.Load("miko")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// Overwrite the card on disk; the cached persona must still be served.
	writeCard(t, dir, "miko", `{"name": "新名字", "description": "d",
		"main_chat_prompt_template": "{persona_description}{user_info}{long_term_memory}{short_term_memory}{current_input}"}`)

	cached, err := catalog.Load("miko")
	if err != nil {
		t.Fatalf("cached Load failed: %v", err)
	}
	if cached.Name != first.Name {
		t.Errorf("expected cached persona, got %q", cached.Name)
	}

	catalog.Invalidate("miko")

	reloaded, err := catalog.Load("miko")
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Name != "新名字" {
		t.Errorf("expected reloaded persona, got %q", reloaded.Name)
	}
}

func TestLoad_FailureIsNotCached(t *testing.T) {
	catalog, dir := newTestCatalog(t)

	if _, err := catalog.Load("late"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// The card appears later; a fresh Load must pick it up.
	writeCard(t, dir, "late", validCard)

	if _, err := catalog.Load("late"); err != nil {
		t.Errorf("expected retry to succeed, got %v", err)
	}
}

func TestFormatExampleDialogue(t *testing.T) {
	p := &Persona{
		Name: "小铃",
		ExampleDialogue: []DialogueExample{
			{User: "你好", Bot: "你好呀！"},
			{User: "在吗", Bot: "在哦。"},
		},
	}

	got := p.FormatExampleDialogue()
	want := "用户：你好\n小铃：你好呀！\n用户：在吗\n小铃：在哦。"
	if got != want {
		t.Errorf("unexpected dialogue rendering:\n got: %q\nwant: %q", got, want)
	}

	empty := &Persona{Name: "x"}
	if empty.FormatExampleDialogue() != "" {
		t.Error("expected empty rendering for no examples")
	}
}
