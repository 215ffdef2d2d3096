package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/user/hotspot-blue/android"
	"github.com/user/hotspot-blue/iphone"
	"github.com/user/hotspot-blue/kotlin"
	"github.com/user/hotspot-blue/onboard"
	"github.com/user/hotspot-blue/phone"
	"github.com/user/hotspot-blue/wire"
)

// Simulated pairing demo: an iPhone and an Android phone each scan the same
// air, pick a hotspot and provision it.
func main() {
	air := wire.NewAir(wire.PerfectSimulationConfig())
	air.AddHotspot(onboard.NewSimulatedHotspot("Hotspot-Kitchen", "HS-1001"))
	air.AddHotspot(onboard.NewSimulatedHotspot("Hotspot-Garage", "HS-1002"))
	air.AddHotspot(wire.NewHotspot("", onboard.ServiceUUID))

	ios := iphone.NewPlatform(air.NewCentral("iphone"))

	pixel := air.NewCentral("pixel")
	pixel.SetPowerState(wire.PowerOff)
	perms := kotlin.NewPermissionManager(func(ctx context.Context, permission string) (bool, error) {
		fmt.Printf("[Android] 🔐 Allow %s? yes\n", permission)
		return true, nil
	})
	droid := android.NewPlatform(kotlin.NewBluetoothManager(pixel).GetAdapter(), perms)

	failed := false
	for i, plat := range []phone.Platform{ios, droid} {
		if err := pair(plat, i); err != nil {
			fmt.Printf("[%s] ❌ %v\n", plat.Name, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func pair(plat phone.Platform, pick int) error {
	m := phone.NewConnectionManager(plat, nil, phone.Options{
		ScanDuration: 500 * time.Millisecond,
		SettleDelay:  100 * time.Millisecond,
	})
	defer m.Close()

	fmt.Printf("[%s] Scanning for hotspots...\n", plat.Name)
	if err := m.Start(context.Background()); err != nil {
		return err
	}

	set := m.DiscoverySet()
	candidates := m.Candidates()
	fmt.Printf("[%s] Saw %d device(s), %d named\n", plat.Name, set.Len(), len(candidates))
	for _, c := range candidates {
		fmt.Printf("[%s]   - %s (%s) RSSI %d\n", plat.Name, c.Name, c.ID, c.RSSI)
	}
	if len(candidates) == 0 {
		return fmt.Errorf("no hotspots found")
	}

	target := candidates[pick%len(candidates)]
	a, err := m.Select(target.ID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	addr, err := a.Wait(ctx)
	if err != nil {
		return err
	}

	snap := m.Store().Get()
	fmt.Printf("[%s] ✅ %s provisioned as %s (state %s)\n", plat.Name, target.Name, addr, snap.Status)

	if err := m.Disconnect(context.Background()); err != nil {
		return err
	}
	fmt.Printf("[%s] Disconnected\n", plat.Name)
	return nil
}
