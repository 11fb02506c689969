package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"dailyaed/internal/core"
)

// RecordSyncMessage asks the worker to mirror one day of one account. The
// worker reads the current row itself, so the message only names it.
type RecordSyncMessage struct {
	AccountID string    `json:"account_id"`
	Date      core.Date `json:"date"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecordSyncMessage creates a sync message stamped with the current time.
func NewRecordSyncMessage(accountID string, date core.Date, version int64) *RecordSyncMessage {
	return &RecordSyncMessage{
		AccountID: accountID,
		Date:      date,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecordSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordSyncMessageFromJSON decodes and checks a message body.
func RecordSyncMessageFromJSON(data []byte) (*RecordSyncMessage, error) {
	var msg RecordSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.AccountID == "" || msg.Date.IsZero() {
		return nil, errors.New("sync message requires account_id and date")
	}
	return &msg, nil
}
