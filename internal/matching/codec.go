package matching

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	cherrors "github.com/coinharbor/coinharbor/common/errors"
)

// Frame layout for every stream: one tag byte followed by the UTF-8 JSON
// encoding of the variant's fields.

func encodeFrame(tag byte, v interface{}) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal frame payload: %w", err)
	}
	frame := make([]byte, len(payload)+1)
	frame[0] = tag
	copy(frame[1:], payload)
	return frame, nil
}

// CommandCodec encodes and decodes command frames.
type CommandCodec struct {
	logger *zap.Logger
}

func NewCommandCodec(logger *zap.Logger) *CommandCodec {
	return &CommandCodec{logger: logger}
}

func (c *CommandCodec) Encode(cmd Command) ([]byte, error) {
	if g, ok := cmd.(*GenericCommand); ok {
		return encodeFrame(byte(g.Tag), g.Fields)
	}
	return encodeFrame(byte(cmd.CommandType()), cmd)
}

// Decode parses a command frame. An unrecognized tag decodes into a
// GenericCommand so that newer producers do not break older consumers; a
// payload that is not valid JSON for the tagged variant is a
// DeserializationError.
func (c *CommandCodec) Decode(frame []byte) (Command, error) {
	if len(frame) < 1 {
		return nil, &cherrors.DeserializationError{Raw: frame, Err: fmt.Errorf("empty frame")}
	}
	tag := CommandType(frame[0])
	payload := frame[1:]

	var cmd Command
	switch tag {
	case CommandTypePutProduct:
		cmd = &PutProductCommand{}
	case CommandTypeDeposit:
		cmd = &DepositCommand{}
	case CommandTypePlaceOrder:
		cmd = &PlaceOrderCommand{}
	case CommandTypeCancelOrder:
		cmd = &CancelOrderCommand{}
	case CommandTypeWithdrawal:
		cmd = &WithdrawalCommand{}
	default:
		c.logger.Warn("unhandled command type", zap.Uint8("tag", uint8(tag)))
		if !json.Valid(payload) {
			return nil, &cherrors.DeserializationError{Tag: byte(tag), Raw: frame, Err: fmt.Errorf("invalid JSON payload")}
		}
		raw := make(json.RawMessage, len(payload))
		copy(raw, payload)
		return &GenericCommand{Tag: tag, Fields: raw}, nil
	}

	if err := json.Unmarshal(payload, cmd); err != nil {
		return nil, &cherrors.DeserializationError{Tag: byte(tag), Raw: frame, Err: err}
	}
	return cmd, nil
}

// MessageCodec encodes and decodes frames on the general engine message
// stream.
type MessageCodec struct {
	logger *zap.Logger
}

func NewMessageCodec(logger *zap.Logger) *MessageCodec {
	return &MessageCodec{logger: logger}
}

func (c *MessageCodec) Encode(msg Message) ([]byte, error) {
	if g, ok := msg.(*GenericMessage); ok {
		return encodeFrame(byte(g.Tag), g.Fields)
	}
	return encodeFrame(byte(msg.MessageType()), msg)
}

func (c *MessageCodec) Decode(frame []byte) (Message, error) {
	if len(frame) < 1 {
		return nil, &cherrors.DeserializationError{Raw: frame, Err: fmt.Errorf("empty frame")}
	}
	tag := MessageType(frame[0])
	payload := frame[1:]

	var msg Message
	switch tag {
	case MessageTypeCommandStart:
		msg = &CommandStartMessage{}
	case MessageTypeCommandEnd:
		msg = &CommandEndMessage{}
	case MessageTypeAccount:
		msg = &AccountMessage{}
	case MessageTypeProduct:
		msg = &ProductMessage{}
	case MessageTypeOrder:
		msg = &OrderMessage{}
	case MessageTypeTrade:
		msg = &TradeMessage{}
	default:
		c.logger.Warn("unhandled message type", zap.Uint8("tag", uint8(tag)))
		if !json.Valid(payload) {
			return nil, &cherrors.DeserializationError{Tag: byte(tag), Raw: frame, Err: fmt.Errorf("invalid JSON payload")}
		}
		raw := make(json.RawMessage, len(payload))
		copy(raw, payload)
		return &GenericMessage{Tag: tag, Fields: raw}, nil
	}

	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, &cherrors.DeserializationError{Tag: byte(tag), Raw: frame, Err: err}
	}
	return msg, nil
}

// LogCodec encodes and decodes frames on the order-book log stream.
type LogCodec struct {
	logger *zap.Logger
}

func NewLogCodec(logger *zap.Logger) *LogCodec {
	return &LogCodec{logger: logger}
}

func (c *LogCodec) Encode(l Log) ([]byte, error) {
	if g, ok := l.(*GenericLog); ok {
		return encodeFrame(byte(g.Tag), g.Fields)
	}
	return encodeFrame(byte(l.LogType()), l)
}

func (c *LogCodec) Decode(frame []byte) (Log, error) {
	if len(frame) < 1 {
		return nil, &cherrors.DeserializationError{Raw: frame, Err: fmt.Errorf("empty frame")}
	}
	tag := LogType(frame[0])
	payload := frame[1:]

	var l Log
	switch tag {
	case LogTypeOrderReceived:
		l = &OrderReceivedLog{}
	case LogTypeOrderOpen:
		l = &OrderOpenLog{}
	case LogTypeOrderMatch:
		l = &OrderMatchLog{}
	case LogTypeOrderDone:
		l = &OrderDoneLog{}
	case LogTypeOrderRejected:
		l = &OrderRejectedLog{}
	case LogTypeTicker:
		l = &TickerLog{}
	default:
		c.logger.Warn("unhandled log type", zap.Uint8("tag", uint8(tag)))
		if !json.Valid(payload) {
			return nil, &cherrors.DeserializationError{Tag: byte(tag), Raw: frame, Err: fmt.Errorf("invalid JSON payload")}
		}
		raw := make(json.RawMessage, len(payload))
		copy(raw, payload)
		return &GenericLog{Tag: tag, Fields: raw}, nil
	}

	if err := json.Unmarshal(payload, l); err != nil {
		return nil, &cherrors.DeserializationError{Tag: byte(tag), Raw: frame, Err: err}
	}
	return l, nil
}
