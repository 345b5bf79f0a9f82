package msgs

import (
	"time"

	"github.com/golang/protobuf/proto"

	fx "github.com/robotalks/balance.go/pkg/framework"
)

// BoardStatus is the event of a status change of the board session.
type BoardStatus struct {
	State     string `protobuf:"bytes,1,opt,name=state,proto3" json:"state"`
	Reason    string `protobuf:"bytes,2,opt,name=reason,proto3" json:"reason,omitempty"`
	Address   string `protobuf:"bytes,3,opt,name=address,proto3" json:"address,omitempty"`
	Timestamp int64  `protobuf:"varint,4,opt,name=timestamp,proto3" json:"timestamp"`
}

// NewMessage implements Message.
func (m *BoardStatus) NewMessage() fx.Message { return &BoardStatus{} }

// TypeID implements SerializableMessage.
func (m *BoardStatus) TypeID() uint32 { return BoardStatusTypeID }

// Serializable implements SerializableMessage.
func (m *BoardStatus) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *BoardStatus) ProtoMessage() {}

// Reset implements proto.Message.
func (m *BoardStatus) Reset() { *m = BoardStatus{} }

// String implements proto.Message.
func (m *BoardStatus) String() string { return proto.CompactTextString(m) }

// Time returns Timestamp as time.Time.
func (m *BoardStatus) Time() time.Time { return time.Unix(0, m.Timestamp) }

// Measurement is the event of a weight measurement.
type Measurement struct {
	Id        string  `protobuf:"bytes,1,opt,name=id,proto3" json:"id"`
	WeightKg  float64 `protobuf:"fixed64,2,opt,name=weight_kg,json=weightKg,proto3" json:"weight_kg"`
	Timestamp int64   `protobuf:"varint,3,opt,name=timestamp,proto3" json:"timestamp"`
	Address   string  `protobuf:"bytes,4,opt,name=address,proto3" json:"address,omitempty"`
}

// NewMessage implements Message.
func (m *Measurement) NewMessage() fx.Message { return &Measurement{} }

// TypeID implements SerializableMessage.
func (m *Measurement) TypeID() uint32 { return MeasurementTypeID }

// Serializable implements SerializableMessage.
func (m *Measurement) Serializable() proto.Message { return m }

// ProtoMessage implements proto.Message.
func (m *Measurement) ProtoMessage() {}

// Reset implements proto.Message.
func (m *Measurement) Reset() { *m = Measurement{} }

// String implements proto.Message.
func (m *Measurement) String() string { return proto.CompactTextString(m) }

// Time returns Timestamp as time.Time.
func (m *Measurement) Time() time.Time { return time.Unix(0, m.Timestamp) }

// TypeID Groups
const (
	GroupBoard uint32 = 0x00010000
)

// TypeIDs
const (
	BoardStatusTypeID uint32 = GroupBoard | TypeIDKindEvent | 0x0000
	MeasurementTypeID uint32 = GroupBoard | TypeIDKindEvent | 0x0001
)
