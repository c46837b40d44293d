package mib

import "github.com/geekxflood/proteus/internal/oid"

// Well-known OIDs referenced across the engine.
const (
	SysDescrOID    = "1.3.6.1.2.1.1.1.0"
	SysObjectIDOID = "1.3.6.1.2.1.1.2.0"
	SysUpTimeOID   = "1.3.6.1.2.1.1.3.0"
	SysContactOID  = "1.3.6.1.2.1.1.4.0"
	SysNameOID     = "1.3.6.1.2.1.1.5.0"
	SysLocationOID = "1.3.6.1.2.1.1.6.0"

	HeartbeatTrapOID = "1.3.6.1.4.1.9999.1.1.1"
)

// BuiltinEntries returns the built-in MIB-II seed: the system group,
// a small interfaces table, and the enterprise subtree. Branch nodes
// are registered as not-accessible so successor lookups have internal
// nodes to skip over, exactly as a real agent's view does.
func BuiltinEntries() []Entry {
	branch := func(o, name, description string) Entry {
		return Entry{
			OID: oid.MustParse(o),
			Node: Node{
				Name:        name,
				Description: description,
				Access:      NotAccessible,
			},
		}
	}

	leaf := func(o, name, description string, t ValueType, access Access, value any) Entry {
		return Entry{
			OID: oid.MustParse(o),
			Node: Node{
				Name:        name,
				Description: description,
				Type:        t,
				Access:      access,
				Value:       value,
				Leaf:        true,
			},
		}
	}

	return []Entry{
		branch("1.3.6.1.2.1.1", "system", "System group"),
		leaf(SysDescrOID, "sysDescr", "System description", TypeOctetString, ReadOnly,
			"Proteus SNMP engine"),
		leaf(SysObjectIDOID, "sysObjectID", "System object identifier", TypeObjectIdentifier, ReadOnly,
			"1.3.6.1.4.1.9999.1.1"),
		leaf(SysUpTimeOID, "sysUpTime", "Time since the agent started, in hundredths of a second",
			TypeTimeTicks, ReadOnly, uint32(0)),
		leaf(SysContactOID, "sysContact", "System contact", TypeOctetString, ReadWrite,
			"admin@proteus.local"),
		leaf(SysNameOID, "sysName", "System name", TypeOctetString, ReadWrite,
			"proteus-agent"),
		leaf(SysLocationOID, "sysLocation", "System location", TypeOctetString, ReadWrite,
			"Data Center Rack 1"),

		branch("1.3.6.1.2.1.2", "interfaces", "Interfaces group"),
		leaf("1.3.6.1.2.1.2.1.0", "ifNumber", "Number of interfaces", TypeInteger, ReadOnly, 2),
		branch("1.3.6.1.2.1.2.2", "ifTable", "Interface table"),
		branch("1.3.6.1.2.1.2.2.1", "ifEntry", "Interface table entry"),
		leaf("1.3.6.1.2.1.2.2.1.1.1", "ifIndex.1", "Interface index", TypeInteger, ReadOnly, 1),
		leaf("1.3.6.1.2.1.2.2.1.1.2", "ifIndex.2", "Interface index", TypeInteger, ReadOnly, 2),
		leaf("1.3.6.1.2.1.2.2.1.2.1", "ifDescr.1", "Ethernet interface 0", TypeOctetString, ReadOnly, "eth0"),
		leaf("1.3.6.1.2.1.2.2.1.2.2", "ifDescr.2", "Ethernet interface 1", TypeOctetString, ReadOnly, "eth1"),
		leaf("1.3.6.1.2.1.2.2.1.3.1", "ifType.1", "Interface type (ethernetCsmacd)", TypeInteger, ReadOnly, 6),
		leaf("1.3.6.1.2.1.2.2.1.3.2", "ifType.2", "Interface type (ethernetCsmacd)", TypeInteger, ReadOnly, 6),
		leaf("1.3.6.1.2.1.2.2.1.10.1", "ifInOctets.1", "Octets received", TypeCounter32, ReadOnly, uint32(1000000)),
		leaf("1.3.6.1.2.1.2.2.1.10.2", "ifInOctets.2", "Octets received", TypeCounter32, ReadOnly, uint32(1500000)),
		leaf("1.3.6.1.2.1.2.2.1.16.1", "ifOutOctets.1", "Octets sent", TypeCounter32, ReadOnly, uint32(2000000)),
		leaf("1.3.6.1.2.1.2.2.1.16.2", "ifOutOctets.2", "Octets sent", TypeCounter32, ReadOnly, uint32(2500000)),

		branch("1.3.6.1.4.1.9999", "proteus", "Enterprise subtree"),
		branch("1.3.6.1.4.1.9999.1", "proteusObjects", "Enterprise objects"),
		branch("1.3.6.1.4.1.9999.1.1", "proteusAgent", "Agent objects"),
		leaf(HeartbeatTrapOID, "heartbeat", "Heartbeat trap payload", TypeOctetString, ReadOnly,
			"proteus heartbeat"),
	}
}
