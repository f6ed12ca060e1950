// Package spicore models the SPI command core of a small mixed-signal control
// chip at the level of its processing clock, and drives it (or the real chip)
// from the host side through periph.io.
//
// The chip accepts two-byte transactions framed by an active-low chip select:
//
//	[CS_N=0] [command, 8 SCK pulses] [data, 8 SCK pulses] [CS_N=1]
//
// and exposes READY, ERROR, PROG_DONE, a one-bit response (MISO) and a 4-bit
// DAC value on parallel outputs.
//
// # References:
//
// Tiny Tapeout
//   - [TT-Pinout]: ui_in/uo_out/uio_* user project interface (https://tinytapeout.com/specs/pinouts/)
//
// SPI
//   - [SPI-Mode0]: CPOL=0, CPHA=0, data sampled on the rising SCK edge
//   - [FTDI-AN_114]: Interfacing FT2232H Hi-Speed Devices To SPI Bus (https://ftdichip.com/wp-content/uploads/2020/08/AN_114_FTDI_Hi_Speed_USB_To_SPI_Example.pdf)
//
// Clock-domain crossing
//   - [Cummings-CDC]: Clock Domain Crossing (CDC) Design & Verification Techniques Using SystemVerilog, SNUG 2008
package spicore
