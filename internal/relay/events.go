package relay

import (
	"fmt"
	"strings"
	"time"

	"github.com/insightdelivered/bank-sms-notifier/internal/models"
	"github.com/insightdelivered/bank-sms-notifier/internal/parser"
)

// Stream message and push types sent by Pushbullet.
const (
	MessagePush   = "push"
	MessageTickle = "tickle"
	MessageNop    = "nop"

	PushSMSChanged = "sms_changed"
	PushMirror     = "mirror"
)

// SMSApps are matched against mirrored notification app names by substring.
var SMSApps = []string{"Messages", "Messaging", "SMS", "Android Messages"}

// StreamMessage is one frame of the event stream.
type StreamMessage struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`
	Push    *Push  `json:"push,omitempty"`
}

// Push is either an ephemeral stream push or an item from push history.
type Push struct {
	Iden            string         `json:"iden,omitempty"`
	Type            string         `json:"type"`
	ApplicationName string         `json:"application_name,omitempty"`
	Title           string         `json:"title,omitempty"`
	Body            string         `json:"body,omitempty"`
	Created         float64        `json:"created,omitempty"`
	SenderName      string         `json:"sender_name,omitempty"`
	SenderNumber    string         `json:"sender_number,omitempty"`
	Notifications   []Notification `json:"notifications,omitempty"`
}

// Notification is one SMS inside an sms_changed push.
type Notification struct {
	ThreadID  string  `json:"thread_id"`
	Title     string  `json:"title"`
	Body      string  `json:"body"`
	Timestamp float64 `json:"timestamp"`
}

// Message is a candidate SMS ready for parsing.
type Message struct {
	Sender      string
	Body        string
	PhoneNumber string
	Timestamp   time.Time
}

func (m Message) key() string {
	return fmt.Sprintf("%s|%d|%s", m.Sender, m.Timestamp.Unix(), m.Body)
}

// IsSMSApp reports whether a mirrored notification came from a messaging app.
func IsSMSApp(name string) bool {
	for _, app := range SMSApps {
		if strings.Contains(name, app) {
			return true
		}
	}
	return false
}

// Messages extracts candidate SMS from a push. Unknown push types and
// mirrors from other apps yield nothing.
func Messages(p Push, now time.Time) []Message {
	switch p.Type {
	case PushSMSChanged:
		return smsChangedMessages(p, now)
	case PushMirror:
		if p.ApplicationName == "" || !IsSMSApp(p.ApplicationName) {
			return nil
		}
		if p.Title == "" && p.Body == "" {
			return nil
		}
		return []Message{{
			Sender:    p.Title,
			Body:      p.Body,
			Timestamp: unixOr(p.Created, now),
		}}
	default:
		return nil
	}
}

func smsChangedMessages(p Push, now time.Time) []Message {
	if len(p.Notifications) == 0 {
		if p.Body == "" && p.Title == "" {
			return nil
		}
		sender := p.Title
		if sender == "" {
			sender = p.SenderName
		}
		if sender == "" {
			sender = "Unknown"
		}
		return []Message{{
			Sender:      sender,
			Body:        p.Body,
			PhoneNumber: p.SenderNumber,
			Timestamp:   unixOr(p.Created, now),
		}}
	}

	var out []Message
	for _, n := range p.Notifications {
		if n.Title == "" || n.Body == "" {
			continue
		}
		out = append(out, Message{
			Sender:      n.Title,
			Body:        n.Body,
			PhoneNumber: n.ThreadID,
			Timestamp:   unixOr(n.Timestamp, now),
		})
	}
	return out
}

func unixOr(seconds float64, fallback time.Time) time.Time {
	if seconds <= 0 {
		return fallback
	}
	sec := int64(seconds)
	nsec := int64((seconds - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// MaskKey hides all but the last four characters of an access token.
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) > 4 {
		key = key[len(key)-4:]
	}
	return "***" + key
}

// Transactions parses the bank SMS carried by pushes, keeping push order.
// Anything that is not a valid bank transaction is skipped. Used for
// one-off history pulls outside the stream.
func Transactions(pushes []Push, now time.Time) []models.Transaction {
	var out []models.Transaction
	for _, p := range pushes {
		for _, m := range Messages(p, now) {
			tx := parser.Parse(m.Body, m.Sender)
			if !tx.IsValid || tx.Bank == models.BankUnknown {
				continue
			}
			out = append(out, tx.WithMetadata(m.Sender, m.PhoneNumber, m.Timestamp))
		}
	}
	return out
}
