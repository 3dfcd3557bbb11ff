// Package serialization implements the .ggr container used to persist
// gradgraph state dictionaries.
//
//	Format Structure:
//	  [64 bytes: fixed header]
//	    0x00-0x03  magic "GGRF"
//	    0x04-0x07  version (uint32 LE)
//	    0x08-0x0B  flags (uint32 LE)
//	    0x0C-0x0F  reserved
//	    0x10-0x17  JSON header size (uint64 LE)
//	    0x18-0x1F  data section size (uint64 LE)
//	    0x20-0x3F  SHA-256 of the data section
//	  [JSON header]
//	  [zero padding to a 64-byte boundary]
//	  [tensor data: little-endian float64, sorted by tensor name]
//
// Example usage:
//
//	header := serialization.Header{ModelType: "Graph", Nodes: names}
//	if err := serialization.WriteFile("model.ggr", header, state); err != nil {
//	    log.Fatal(err)
//	}
//
//	header, state, err := serialization.ReadFile("model.ggr", serialization.DefaultReaderOptions())
//
// State dictionaries can also be exported to SafeTensors for use outside
// gradgraph.
package serialization
