package node

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/Vasanthadithya-mundrathi/NACC/internal/model"
)

// GetNodeInfo samples live host telemetry at call time; there is no
// caching at the node, per spec.md §4.1.
func (rc *RootContext) GetNodeInfo(ctx context.Context) (*model.NodeInfo, error) {
	info := &model.NodeInfo{
		NodeID: rc.NodeID,
		Tags:   rc.Tags,
		OS:     runtime.GOOS,
		Arch:   runtime.GOARCH,
	}

	if pcts, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false); err == nil && len(pcts) > 0 {
		info.CPUPercent = pcts[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryPercent = vm.UsedPercent
	}
	if du, err := disk.UsageWithContext(ctx, rc.RootDir); err == nil {
		info.DiskPercent = du.UsedPercent
	}
	if hi, err := host.InfoWithContext(ctx); err == nil {
		info.UptimeSeconds = int64(hi.Uptime)
	}
	for cmd := range rc.AllowedCommands {
		info.Capabilities = append(info.Capabilities, cmd)
	}
	return info, nil
}
