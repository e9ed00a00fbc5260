// Package assistant is the rule-based diagnostic helper: a fixed ordered
// keyword table and an append-only conversation log.
package assistant

import (
	"strings"
	"sync"
	"time"
)

const (
	SenderUser = "user"
	SenderBot  = "bot"
)

const greeting = "Xin chào! Tôi là trợ lý AI y tế. Tôi có thể giúp bạn trả lời các câu hỏi về sức khỏe, triệu chứng, hoặc hướng dẫn chăm sóc cơ bản. Bạn cần hỗ trợ gì?"

const fallback = "Cảm ơn bạn đã chia sẻ. Tôi khuyên bạn nên tham khảo ý kiến bác sĩ để được tư vấn chính xác nhất. Có điều gì khác tôi có thể giúp bạn không?"

type rule struct {
	keywords []string
	reply    string
}

// order matters: first match wins
var rules = []rule{
	{[]string{"đau đầu"}, "Đau đầu có thể do nhiều nguyên nhân như căng thẳng, mất ngủ, hoặc tăng huyết áp. Bạn nên nghỉ ngơi, uống đủ nước và nếu đau không giảm sau 24h, hãy đến gặp bác sĩ."},
	{[]string{"sốt"}, "Sốt là dấu hiệu cơ thể đang chống lại nhiễm trùng. Bạn nên uống nhiều nước, nghỉ ngơi và nếu sốt trên 38.5°C kéo dài, hãy liên hệ bác sĩ ngay."},
	{[]string{"ho"}, "Ho có thể do cảm lạnh, dị ứng hoặc nhiễm trùng. Uống nước ấm, mật ong và tránh khói bụi. Nếu ho có máu hoặc kéo dài trên 2 tuần, cần khám bác sĩ."},
	{[]string{"đặt lịch", "hẹn"}, "Để đặt lịch hẹn với bác sĩ, bạn có thể sử dụng chức năng \"Đặt lịch hẹn\" trong trang chính hoặc gọi hotline của bệnh viện."},
	{[]string{"thuốc"}, "Tôi không thể tư vấn cụ thể về thuốc. Mọi việc sử dụng thuốc cần theo chỉ định của bác sĩ. Bạn nên tham khảo ý kiến bác sĩ trước khi dùng bất kỳ loại thuốc nào."},
}

// Respond is the pure lookup: case-insensitive substring match over the table,
// first match wins, fixed fallback otherwise.
func Respond(text string) string {
	input := strings.ToLower(text)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(input, kw) {
				return r.reply
			}
		}
	}
	return fallback
}

type Message struct {
	ID     int64
	Sender string
	Text   string
	At     time.Time
}

// Log is the append-only conversation history. Entries are never reordered or
// mutated once appended.
type Log struct {
	mu     sync.Mutex
	nextID int64
	msgs   []Message
}

func NewLog() *Log {
	l := &Log{nextID: 1}
	l.append(SenderBot, greeting)
	return l
}

// Send appends the user's turn and the assistant's reply, returning the reply.
func (l *Log) Send(text string) Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLocked(SenderUser, text)
	return l.appendLocked(SenderBot, Respond(text))
}

// History returns the conversation so far, oldest first.
func (l *Log) History() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

func (l *Log) append(sender, text string) Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(sender, text)
}

func (l *Log) appendLocked(sender, text string) Message {
	msg := Message{ID: l.nextID, Sender: sender, Text: text, At: time.Now()}
	l.nextID++
	l.msgs = append(l.msgs, msg)
	return msg
}
