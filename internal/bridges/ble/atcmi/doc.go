// Package atcmi recognises and decodes the advertisement formats broadcast
// by Xiaomi LYWSD03MMC and similar thermometers running ATC1441 or pvvx
// custom firmware.
//
// Supported formats:
//
//	Format       Service UUID  Length  Notes
//	atc1441      0x181A        13      big-endian, 0.1 °C resolution
//	atc1441_enc  0x181A        8       pvvx, AES-CCM, 0.5 resolution
//	custom       0x181A        15      pvvx, little-endian, 0.01 resolution
//	custom_enc   0x181A        11      pvvx, AES-CCM with a 4-byte MIC
//	bthome_v2    0xFCD2        var     BTHome v2 objects, optionally encrypted
//
// Xiaomi MiBeacon frames (0xFE95) are not recognised.
//
// Decoded values use canonical names shared by every format so a device's
// configured keys do not depend on its firmware:
//
//	temperature    °C
//	humidity       %
//	battery_level  %
//	battery_v      V
//	pressure       hPa
//	illuminance    lx
//	counter        (no unit)
//	flags          (no unit)
//
// Codec implements both ble.Detector and ble.Decoder.
package atcmi
