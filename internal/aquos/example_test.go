package aquos_test

import (
	"context"
	"fmt"

	"aquos/internal/aquos"
)

// A session against the simulator: discover, list inputs and switch to
// the second HDMI input.
func Example() {
	ctx := context.Background()
	sim := aquos.NewSimulator()

	opts := aquos.DefaultOptions()
	opts.HDMIInputs = 2
	opts.CommandDelay = 0
	opts.SettleDelay = 0

	endpoint := aquos.Endpoint{
		Host:            "192.168.1.20",
		ControlPort:     aquos.DefaultControlPort,
		DescriptionPort: aquos.DefaultDescriptionPort,
	}
	session, err := aquos.NewSession(endpoint, sim, opts)
	if err != nil {
		fmt.Println(err)
		return
	}
	if err := session.Setup(ctx); err != nil {
		fmt.Println(err)
		return
	}

	for _, input := range aquos.Inputs(session.Registry()) {
		if input.Kind != aquos.KindTuner {
			fmt.Println(input.Identifier, input.Label)
		}
	}

	if err := session.SelectIdentifier(ctx, 6); err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("active:", session.State().ActiveIdentifier)
	fmt.Println("sent:", sim.Commands())

	// Output:
	// 0 Netflix App
	// 1 YouTube App
	// 5 HDMI Input 1
	// 6 HDMI Input 2
	// active: 6
	// sent: [IDIN0012]
}
