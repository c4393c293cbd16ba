package extraction

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/flightscout/orchestrator/types"
)

// defaultTokenBudget bounds the accumulated vision-action transcript passed
// to the model on each turn. Screenshots dominate actual token cost, but the
// text transcript (tool calls, tool results, task description) still grows
// unboundedly over DefaultMaxIterations rounds without a cap.
const defaultTokenBudget = 60000

// tokenBudget lazily initializes a cl100k_base encoding and trims the oldest
// non-initial messages once the transcript's estimated token count exceeds
// its budget, grounded on llm/tokenizer/tiktoken.go's CountMessages, adapted
// from a hard per-model context limit to a soft loop-local budget guard.
type tokenBudget struct {
	limit int
	once  sync.Once
	enc   *tiktoken.Tiktoken
	err   error
}

func newTokenBudget(limit int) *tokenBudget {
	if limit <= 0 {
		limit = defaultTokenBudget
	}
	return &tokenBudget{limit: limit}
}

func (b *tokenBudget) init() {
	b.enc, b.err = tiktoken.GetEncoding("cl100k_base")
}

// count estimates messages' total token cost, including the same per-message
// role/content overhead llm/tokenizer/tiktoken.go charges. It returns 0 on
// encoding init failure rather than blocking the extraction loop on a
// tokenizer-availability problem.
func (b *tokenBudget) count(messages []types.Message) int {
	b.once.Do(b.init)
	if b.err != nil {
		return 0
	}
	total := 3
	for _, m := range messages {
		total += 4 + len(b.enc.Encode(m.Content, nil, nil)) + len(b.enc.Encode(string(m.Role), nil, nil))
	}
	return total
}

// trim drops the oldest assistant/tool exchange (messages[1:3]) while the
// transcript exceeds the budget, always preserving messages[0] — the
// original task turn every subsequent model call is grounded against.
func (b *tokenBudget) trim(messages []types.Message) []types.Message {
	for len(messages) > 3 && b.count(messages) > b.limit {
		messages = append(messages[:1:1], messages[3:]...)
	}
	return messages
}
