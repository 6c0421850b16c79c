package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/akinomura/senpai/pkg/senpai/channels"
	"github.com/akinomura/senpai/pkg/senpai/identity"
)

// ---------- Fakes ----------

type fakeIdentity struct {
	created bool
	err     error
}

func (f *fakeIdentity) GetOrCreate(_ context.Context, id int64, name, displayName string) (*identity.Profile, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	if displayName == "" {
		displayName = name
	}
	return &identity.Profile{ID: id, Name: name, DisplayName: displayName}, f.created, nil
}

type fakeHistory struct {
	msgs []*channels.Message
	err  error
}

func (f *fakeHistory) History(_ context.Context, _, _ string, _ int) ([]*channels.Message, error) {
	return f.msgs, f.err
}

type fakeRetriever struct {
	memories []string
	err      error
	lastQ    string
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ int64, query string) ([]string, error) {
	f.lastQ = query
	return f.memories, f.err
}

func textMsg(id, sender string, senderID int64, content string) *channels.Message {
	return &channels.Message{
		ID:                id,
		SenderID:          senderID,
		SenderName:        sender,
		SenderDisplayName: sender,
		ChatID:            "chan-1",
		Content:           content,
	}
}

// ---------- Tests ----------

func TestRenderMessage_PlainText(t *testing.T) {
	got := RenderMessage(textMsg("1", "HistUser", 1, "这是一条历史消息"))
	want := "HistUser: 这是一条历史消息"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if strings.Contains(got, embedOpen) {
		t.Error("plain message must not contain embed markers")
	}
}

func TestRenderMessage_EmptyMessagePlaceholder(t *testing.T) {
	got := RenderMessage(textMsg("1", "Quiet", 1, "   "))
	want := "Quiet: " + emptyMessage
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderMessage_EmbedBlock(t *testing.T) {
	msg := textMsg("1", "EmbedSender", 1, "看这个酷东西！")
	msg.Embeds = []channels.Embed{{
		AuthorName:  "A",
		Title:       "T",
		Description: "D",
		Fields: []channels.EmbedField{
			{Name: "F1", Value: "V1"},
			{Name: "F2", Value: "V2"},
		},
		FooterText: "Foot",
		HasImage:   true,
	}}

	got := RenderMessage(msg)
	want := "EmbedSender: 看这个酷东西！\n" +
		"[嵌入内容开始]\n" +
		"作者：A\n" +
		"标题：T\n" +
		"描述:\nD\n" +
		"字段:\n- F1: V1\n- F2: V2\n" +
		"[提示：消息包含一张主图片]\n" +
		"页脚：Foot\n" +
		"[嵌入内容结束]"
	if got != want {
		t.Errorf("embed rendering mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderMessage_ThumbnailFlag(t *testing.T) {
	msg := textMsg("1", "S", 1, "")
	msg.Embeds = []channels.Embed{{Title: "T", HasThumbnail: true}}

	got := RenderMessage(msg)
	want := "S: [嵌入内容开始]\n标题：T\n[提示：消息包含一张缩略图]\n[嵌入内容结束]"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestMemoryQuery_FallbackChain(t *testing.T) {
	withText := textMsg("1", "S", 1, "hello")
	withText.Embeds = []channels.Embed{{Description: "desc", Title: "title"}}
	if q := memoryQuery(withText); q != "hello" {
		t.Errorf("text should win, got %q", q)
	}

	noText := textMsg("1", "S", 1, "")
	noText.Embeds = []channels.Embed{{Description: "desc", Title: "title"}}
	if q := memoryQuery(noText); q != "desc" {
		t.Errorf("description should win over title, got %q", q)
	}

	titleOnly := textMsg("1", "S", 1, "")
	titleOnly.Embeds = []channels.Embed{{Title: "title"}}
	if q := memoryQuery(titleOnly); q != "title" {
		t.Errorf("title should be next, got %q", q)
	}

	nothing := textMsg("1", "S", 1, "")
	if q := memoryQuery(nothing); q != queryFallback {
		t.Errorf("expected generic fallback, got %q", q)
	}
}

func TestAssemble_HistoryReversedOldestFirst(t *testing.T) {
	// History sources return newest-first.
	history := &fakeHistory{msgs: []*channels.Message{
		textMsg("3", "U", 1, "третья"),
		textMsg("2", "U", 1, "second"),
		textMsg("1", "U", 1, "first"),
	}}

	a := NewAssembler(&fakeIdentity{}, history, &fakeRetriever{}, 10, nil)
	bundle, err := a.Assemble(context.Background(), textMsg("4", "U", 1, "now"))
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	want := "U: first\nU: second\nU: третья"
	if bundle.ShortTermTranscript != want {
		t.Errorf("transcript not oldest-first:\n got: %q\nwant: %q", bundle.ShortTermTranscript, want)
	}
}

func TestAssemble_PopulatesBundle(t *testing.T) {
	retriever := &fakeRetriever{memories: []string{"m1", "m2"}}
	a := NewAssembler(&fakeIdentity{created: true}, &fakeHistory{}, retriever, 0, nil)

	bundle, err := a.Assemble(context.Background(), textMsg("1", "Alice", 100, "hello"))
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if bundle.UserInfo != "当前用户：Alice（ID：100）" {
		t.Errorf("unexpected identity summary: %q", bundle.UserInfo)
	}
	if bundle.CurrentInput != "Alice: hello" {
		t.Errorf("unexpected current input: %q", bundle.CurrentInput)
	}
	if len(bundle.LongTermMemories) != 2 {
		t.Errorf("unexpected memories: %v", bundle.LongTermMemories)
	}
	if !bundle.FirstContact {
		t.Error("expected first contact flag")
	}
	if retriever.lastQ != "hello" {
		t.Errorf("retriever queried with %q", retriever.lastQ)
	}
}

func TestAssemble_RetrieverFailureAbsorbed(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("vector index on fire")}
	a := NewAssembler(&fakeIdentity{}, &fakeHistory{}, retriever, 0, nil)

	bundle, err := a.Assemble(context.Background(), textMsg("1", "U", 1, "hi"))
	if err != nil {
		t.Fatalf("retriever failure must not escape, got %v", err)
	}
	if len(bundle.LongTermMemories) != 0 {
		t.Errorf("expected empty memories, got %v", bundle.LongTermMemories)
	}
	if FormatMemories(bundle.LongTermMemories) != noMemoryMarker {
		t.Error("empty memories must render the no-memory marker")
	}
}

func TestAssemble_IdentityFailureAborts(t *testing.T) {
	a := NewAssembler(&fakeIdentity{err: errors.New("db unreachable")}, &fakeHistory{}, &fakeRetriever{}, 0, nil)

	if _, err := a.Assemble(context.Background(), textMsg("1", "U", 1, "hi")); err == nil {
		t.Error("expected identity failure to abort assembly")
	}
}

func TestAssemble_HistoryFailureAborts(t *testing.T) {
	a := NewAssembler(&fakeIdentity{}, &fakeHistory{err: errors.New("gateway hiccup")}, &fakeRetriever{}, 0, nil)

	if _, err := a.Assemble(context.Background(), textMsg("1", "U", 1, "hi")); err == nil {
		t.Error("expected history failure to abort assembly")
	}
}
