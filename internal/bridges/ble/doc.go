// Package ble implements the scanning side of the ATC/Mi telemetry bridge.
//
// It listens to a passive BLE advertisement stream, keeps only frames from
// configured sensors, hands their payloads to a format detector and decoder,
// and turns each decoded advertisement into an ordered measurement Record.
//
// # Architecture
//
//	┌──────────────┐  Advertisement  ┌──────────────┐  Record  ┌─────────┐
//	│    Source    │────────────────►│   Producer   │─────────►│  Queue  │
//	│ (BlueZ scan) │                 │ (this pkg)   │          └─────────┘
//	└──────────────┘                 └──────┬───────┘
//	                                        │ Detect / Decode
//	                                        ▼
//	                                 ┌──────────────┐
//	                                 │ atcmi codec  │
//	                                 └──────────────┘
//
// # Addresses
//
// Sensors are identified by their 6-byte hardware address. Addresses are
// parsed once from configuration and used as map keys everywhere:
//
//	addr, err := ble.ParseAddress("a4:c1:38:7a:a5:7e")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(addr) // "A4:C1:38:7A:A5:7E"
//
// # Failure Semantics
//
// A Producer is a single scanning session. Any error from the source, or a
// decode failure under the default policy, ends the session and is returned
// to the caller, which is expected to run the producer under a supervisor
// that builds a fresh Producer after a back-off delay.
//
// # Thread Safety
//
// DeviceTable is read-only after construction. A Producer is owned by the
// goroutine running it.
package ble
