package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"stepcore/config"
	"stepcore/core"
	"stepcore/host"
	"stepcore/host/serial"
)

var (
	device  = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud    = flag.Int("baud", 115200, "Baud rate (ignored for USB CDC)")
	cfgPath = flag.String("config", "", "YAML configuration file (for envelope display)")
	logPath = flag.String("log", "stepcore-host.log", "Rotating event log file")
)

func main() {
	flag.Parse()

	log.SetOutput(&lumberjack.Logger{
		Filename:   *logPath,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
	})

	var cfg core.Config
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Envelope: max_velocity=%d max_acceleration=%d channels=%d\n",
			cfg.MaxVelocity, cfg.MaxAcceleration, cfg.Channels)
	}

	fmt.Printf("Connecting to controller on %s...\n", *device)
	client, err := host.Connect(&serial.Config{
		Device:      *device,
		Baud:        *baud,
		ReadTimeout: 100,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()
	log.Printf("connected device=%s", *device)

	fmt.Println("Connected. Commands: move <ch> <pos> <vel> <acc> | status | watch | estop | reset | quit")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Fields(line)

		switch parts[0] {
		case "quit", "exit", "q":
			return

		case "move":
			if len(parts) != 5 {
				fmt.Println("usage: move <channel> <position> <velocity> <accel>")
				continue
			}
			cmd, err := parseMove(parts[1:])
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			if err := client.SendMotion(cmd); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			log.Printf("move channel=%d target=%d vel=%d acc=%d",
				cmd.Channel, cmd.TargetPosition, cmd.TargetVelocity, cmd.AccelLimit)

		case "status":
			if err := printStatus(client); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}

		case "watch":
			fmt.Println("Streaming status, ctrl-c to stop")
			for {
				if err := printStatus(client); err != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n", err)
					break
				}
				time.Sleep(200 * time.Millisecond)
			}

		case "estop":
			if err := client.SendEStop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			log.Printf("estop requested")
			fmt.Println("Emergency stop requested")

		case "reset":
			if err := client.SendReset(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}
			log.Printf("manual reset requested")

		default:
			fmt.Printf("Unknown command: %s\n", parts[0])
		}
	}
}

// parseMove builds a MotionCommand from "move" arguments.
func parseMove(args []string) (core.MotionCommand, error) {
	var cmd core.MotionCommand
	ch, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil {
		return cmd, fmt.Errorf("channel: %w", err)
	}
	pos, err := strconv.ParseInt(args[1], 10, 32)
	if err != nil {
		return cmd, fmt.Errorf("position: %w", err)
	}
	vel, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		return cmd, fmt.Errorf("velocity: %w", err)
	}
	acc, err := strconv.ParseUint(args[3], 10, 32)
	if err != nil {
		return cmd, fmt.Errorf("accel: %w", err)
	}
	cmd.Channel = uint8(ch)
	cmd.TargetPosition = int32(pos)
	cmd.TargetVelocity = uint32(vel)
	cmd.AccelLimit = uint32(acc)
	return cmd, nil
}

// printStatus requests and prints one round of channel reports.
func printStatus(client *host.Client) error {
	if err := client.RequestStatus(); err != nil {
		return err
	}
	time.Sleep(50 * time.Millisecond)
	reports, err := client.ReadReports()
	if err != nil {
		return err
	}
	for _, r := range reports {
		fmt.Printf("ch%-2d pos=%-10d vel=%-8d faults=0x%04x state=%s\n",
			r.Channel, r.Position, r.Velocity, r.FaultFlags, r.State)
		if r.FaultFlags != 0 {
			log.Printf("fault channel=%d flags=0x%x state=%s",
				r.Channel, r.FaultFlags, r.State)
		}
	}
	return nil
}
