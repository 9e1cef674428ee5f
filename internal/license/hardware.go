package license

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	gnet "github.com/shirou/gopsutil/v3/net"
)

// HardwareInfo is an ephemeral snapshot of the machine identity, computed
// fresh on each call. HardwareID is a one-way hash of
// "{machineName}-{cpuInfo}-{networkInfo}"; the remaining fields are
// informational.
type HardwareInfo struct {
	HardwareID  string `json:"hardware_id"`
	MachineName string `json:"machine_name"`
	CPUInfo     string `json:"cpu_info"`
	DiskInfo    string `json:"disk_info"`
	NetworkInfo string `json:"network_info"`
	// Fallback is true when OS facilities were unavailable and the id is a
	// random token. A fallback id changes on every call, so hardware binding
	// is not reproducible on this host.
	Fallback bool `json:"fallback,omitempty"`
}

// Fingerprinter derives a machine identity for license binding.
type Fingerprinter interface {
	Fingerprint(ctx context.Context) *HardwareInfo
}

// HostFingerprinter reads the identity of the local host: hostname, first
// CPU model string, and the first non-zero MAC address in interface
// enumeration order.
type HostFingerprinter struct {
	logger zerolog.Logger
}

// NewHostFingerprinter creates a fingerprinter for the local host.
func NewHostFingerprinter(logger zerolog.Logger) *HostFingerprinter {
	return &HostFingerprinter{
		logger: logger.With().Str("component", "fingerprinter").Logger(),
	}
}

// Fingerprint computes the hardware identity. When any OS facility is
// unavailable it falls back to a random identifier with placeholder fields;
// the fallback is logged loudly because it defeats hardware binding and is
// a deployment constraint, not a silent recovery.
func (f *HostFingerprinter) Fingerprint(ctx context.Context) *HardwareInfo {
	machineName, cpuInfo, networkInfo, err := f.collect(ctx)
	if err != nil {
		f.logger.Warn().Err(err).
			Msg("hardware facilities unavailable, using random fallback id: hardware binding is NOT reproducible on this host")
		return fallbackHardwareInfo()
	}

	sum := sha256.Sum256(fmt.Appendf(nil, "%s-%s-%s", machineName, cpuInfo, networkInfo))

	return &HardwareInfo{
		HardwareID:  hex.EncodeToString(sum[:]),
		MachineName: machineName,
		CPUInfo:     cpuInfo,
		DiskInfo:    f.diskInfo(ctx),
		NetworkInfo: networkInfo,
	}
}

func (f *HostFingerprinter) collect(ctx context.Context) (machineName, cpuInfo, networkInfo string, err error) {
	hostInfo, err := host.InfoWithContext(ctx)
	if err != nil {
		return "", "", "", fmt.Errorf("read host info: %w", err)
	}
	machineName = hostInfo.Hostname

	cpus, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return "", "", "", fmt.Errorf("read cpu info: %w", err)
	}
	if len(cpus) == 0 {
		return "", "", "", fmt.Errorf("no cpu info available")
	}
	cpuInfo = cpus[0].ModelName

	networkInfo, err = firstMACAddress(ctx)
	if err != nil {
		return "", "", "", err
	}

	return machineName, cpuInfo, networkInfo, nil
}

// firstMACAddress returns the first non-zero MAC address in enumeration
// order. First match wins; no further tie-break is applied.
func firstMACAddress(ctx context.Context) (string, error) {
	interfaces, err := gnet.InterfacesWithContext(ctx)
	if err != nil {
		return "", fmt.Errorf("enumerate network interfaces: %w", err)
	}

	for _, iface := range interfaces {
		addr := iface.HardwareAddr
		if addr == "" || addr == "00:00:00:00:00:00" {
			continue
		}
		return addr, nil
	}

	return "", fmt.Errorf("no network interface with a hardware address")
}

// diskInfo is informational only and never fails the fingerprint.
func (f *HostFingerprinter) diskInfo(ctx context.Context) string {
	partitions, err := disk.PartitionsWithContext(ctx, false)
	if err != nil || len(partitions) == 0 {
		return "unknown-disk"
	}
	return partitions[0].Device
}

func fallbackHardwareInfo() *HardwareInfo {
	token := make([]byte, 32)
	// rand.Read on a supported platform does not fail; a short read would
	// only weaken an id that is already non-binding.
	_, _ = rand.Read(token)

	return &HardwareInfo{
		HardwareID:  hex.EncodeToString(token),
		MachineName: "unknown",
		CPUInfo:     "unknown-cpu",
		DiskInfo:    "unknown-disk",
		NetworkInfo: "unknown-mac",
		Fallback:    true,
	}
}
