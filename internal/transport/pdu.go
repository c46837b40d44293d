package transport

import (
	"fmt"
	"strings"

	"github.com/gosnmp/gosnmp"

	"github.com/geekxflood/proteus/internal/engine"
	"github.com/geekxflood/proteus/internal/mib"
)

// resultFromPacket converts the first varbind of a response packet
// into an operation result. Exception varbinds and error-status
// responses become the matching failure kinds.
func resultFromPacket(packet *gosnmp.SnmpPacket) (engine.OperationResult, error) {
	if packet == nil || len(packet.Variables) == 0 {
		return engine.OperationResult{}, fmt.Errorf("empty response packet")
	}

	if failure, failed := failureFromStatus(packet); failed {
		return engine.FailureResult(failure), nil
	}

	pdu := packet.Variables[0]

	switch pdu.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance:
		return engine.FailureResult(engine.NoSuchObject), nil
	case gosnmp.EndOfMibView:
		return engine.FailureResult(engine.EndOfMibView), nil
	}

	valueType, value, err := decodeValue(pdu)
	if err != nil {
		return engine.OperationResult{}, err
	}

	return engine.SuccessResult(strings.TrimPrefix(pdu.Name, "."), valueType, value), nil
}

// failureFromStatus maps a response error-status to a failure kind.
func failureFromStatus(packet *gosnmp.SnmpPacket) (engine.FailureKind, bool) {
	switch packet.Error {
	case gosnmp.NoError:
		return "", false
	case gosnmp.NotWritable, gosnmp.ReadOnly, gosnmp.NoAccess:
		return engine.NotWritable, true
	case gosnmp.WrongType, gosnmp.WrongLength, gosnmp.WrongValue, gosnmp.BadValue:
		return engine.WrongType, true
	case gosnmp.NoSuchName, gosnmp.NoCreation:
		return engine.NoSuchObject, true
	default:
		return engine.NoSuchObject, true
	}
}

// decodeValue converts a varbind payload to the node value model.
func decodeValue(pdu gosnmp.SnmpPDU) (mib.ValueType, any, error) {
	switch pdu.Type {
	case gosnmp.Integer:
		return mib.TypeInteger, int(gosnmp.ToBigInt(pdu.Value).Int64()), nil
	case gosnmp.OctetString:
		raw, ok := pdu.Value.([]byte)
		if !ok {
			return 0, nil, fmt.Errorf("octet string varbind %s: unexpected payload %T", pdu.Name, pdu.Value)
		}
		return mib.TypeOctetString, string(raw), nil
	case gosnmp.ObjectIdentifier:
		text, ok := pdu.Value.(string)
		if !ok {
			return 0, nil, fmt.Errorf("object identifier varbind %s: unexpected payload %T", pdu.Name, pdu.Value)
		}
		return mib.TypeObjectIdentifier, strings.TrimPrefix(text, "."), nil
	case gosnmp.TimeTicks:
		return mib.TypeTimeTicks, uint32(gosnmp.ToBigInt(pdu.Value).Uint64()), nil
	case gosnmp.Counter32, gosnmp.Counter64, gosnmp.Gauge32:
		return mib.TypeCounter32, uint32(gosnmp.ToBigInt(pdu.Value).Uint64()), nil
	case gosnmp.Null:
		return mib.TypeNull, nil, nil
	default:
		return 0, nil, fmt.Errorf("varbind %s: unsupported type %v", pdu.Name, pdu.Type)
	}
}

// pduForSet builds the outgoing varbind for a SET request.
func pduForSet(name string, value any, declared mib.ValueType) (gosnmp.SnmpPDU, error) {
	pdu := gosnmp.SnmpPDU{Name: name}

	switch declared {
	case mib.TypeInteger:
		pdu.Type = gosnmp.Integer
		pdu.Value = value.(int)
	case mib.TypeOctetString:
		pdu.Type = gosnmp.OctetString
		pdu.Value = value.(string)
	case mib.TypeObjectIdentifier:
		pdu.Type = gosnmp.ObjectIdentifier
		pdu.Value = value.(string)
	case mib.TypeTimeTicks:
		pdu.Type = gosnmp.TimeTicks
		pdu.Value = value.(uint32)
	case mib.TypeCounter32:
		pdu.Type = gosnmp.Counter32
		pdu.Value = value.(uint32)
	default:
		return gosnmp.SnmpPDU{}, fmt.Errorf("type %s cannot be sent in a SET request", declared)
	}

	return pdu, nil
}
