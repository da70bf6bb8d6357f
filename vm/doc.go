// Package vm implements the Minnow virtual machine.
//
// This package contains:
//   - Tagged value representation
//   - Single operand stack
//   - Append-only heap with dictionary and array objects
//   - Reference-based field access with create-on-write
//   - Flat bytecode decoder and interpreter
//   - Program builder, disassembler and execution snapshots
package vm
