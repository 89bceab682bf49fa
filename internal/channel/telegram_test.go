package channel

import (
	"strings"
	"testing"
)

func TestSplitMessage_ShortTextIsOneChunk(t *testing.T) {
	chunks := splitMessage("Recommended crop: groundnut")
	if len(chunks) != 1 || chunks[0] != "Recommended crop: groundnut" {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestSplitMessage_BreaksAtNewline(t *testing.T) {
	first := strings.Repeat("a", telegramMaxMsgLen-100)
	second := strings.Repeat("b", 300)
	chunks := splitMessage(first + "\n" + second)

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0] != first {
		t.Errorf("first chunk did not break at the newline (len %d)", len(chunks[0]))
	}
	if strings.TrimPrefix(chunks[1], "\n") != second {
		t.Errorf("second chunk lost content (len %d)", len(chunks[1]))
	}
}

func TestSplitMessage_HardCutWithoutNewline(t *testing.T) {
	text := strings.Repeat("x", telegramMaxMsgLen+500)
	chunks := splitMessage(text)

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if len(chunks[0]) != telegramMaxMsgLen {
		t.Errorf("first chunk len = %d, want %d", len(chunks[0]), telegramMaxMsgLen)
	}
	if chunks[0]+chunks[1] != text {
		t.Error("chunks do not reassemble to the original text")
	}
}

func TestSplitMessage_IgnoresEarlyNewline(t *testing.T) {
	// A newline in the first half of the window is a worse cut than the hard
	// limit, so the splitter ignores it.
	text := "intro\n" + strings.Repeat("y", telegramMaxMsgLen+10)
	chunks := splitMessage(text)

	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if len(chunks[0]) != telegramMaxMsgLen {
		t.Errorf("first chunk len = %d, want hard cut at %d", len(chunks[0]), telegramMaxMsgLen)
	}
}
