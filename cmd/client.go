package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/itiky/shared-list/broadcast"
	"github.com/itiky/shared-list/config"
	"github.com/itiky/shared-list/service/client"
)

const (
	FlagServerUrl     = "server-url"
	FlagEventsUrl     = "events-url"
	FlagDeviceId      = "device-id"
	FlagOpsSendPeriod = "updates-period"
	FlagPollPeriod    = "poll-period"
)

// GetClientCmd returns RPC-client start command.
func GetClientCmd() *cobra.Command {
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("client config: %v", err)
	}

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Start list client",
		Run: func(cmd *cobra.Command, args []string) {
			// Parse inputs
			serverUrl, err := cmd.Flags().GetString(FlagServerUrl)
			if err != nil {
				log.Fatalf("%s flag: %v", FlagServerUrl, err)
			}
			eventsUrl, err := cmd.Flags().GetString(FlagEventsUrl)
			if err != nil {
				log.Fatalf("%s flag: %v", FlagEventsUrl, err)
			}
			topic, err := cmd.Flags().GetString(FlagTopic)
			if err != nil {
				log.Fatalf("%s flag: %v", FlagTopic, err)
			}
			deviceId, err := cmd.Flags().GetString(FlagDeviceId)
			if err != nil {
				log.Fatalf("%s flag: %v", FlagDeviceId, err)
			}
			opsSendDur, err := cmd.Flags().GetDuration(FlagOpsSendPeriod)
			if err != nil {
				log.Fatalf("%s flag: %v", FlagOpsSendPeriod, err)
			}
			pollDur, err := cmd.Flags().GetDuration(FlagPollPeriod)
			if err != nil {
				log.Fatalf("%s flag: %v", FlagPollPeriod, err)
			}

			if deviceId == "" {
				deviceId = config.NewDeviceId()
			}

			// Init dependencies
			caller, err := client.DialRPC(serverUrl)
			if err != nil {
				log.Fatalf("RPC client: %v", err)
			}

			var subscriber broadcast.Subscriber
			if strings.HasPrefix(eventsUrl, "ws://") || strings.HasPrefix(eventsUrl, "wss://") {
				subscriber = broadcast.NewWebSocketSubscriber(eventsUrl)
			} else {
				broadcaster, err := broadcast.Open(eventsUrl, topic)
				if err != nil {
					log.Fatalf("subscriber init: %v", err)
				}
				defer broadcaster.Close()
				subscriber = broadcaster
			}

			// Init service
			svc, err := client.NewClient(deviceId, caller, subscriber, opsSendDur, pollDur)
			if err != nil {
				log.Fatalf("service init: %v", err)
			}

			if err := svc.Start(); err != nil {
				log.Fatalf("service start: %v", err)
			}

			// Wait for signal
			signalCh := make(chan os.Signal, 1)
			signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
			<-signalCh

			if err := svc.Close(); err != nil {
				log.Printf("service close: %v", err)
			}
		},
	}
	cmd.Flags().String(FlagDeviceId, cfg.DeviceId, "(optional) unique device id, random if empty")
	cmd.Flags().String(FlagServerUrl, cfg.ServerURL, "(optional) RPC server url")
	cmd.Flags().String(FlagEventsUrl, cfg.EventsURL, "(optional) events url (ws://<host>/events or redis://...)")
	cmd.Flags().String(FlagTopic, cfg.Topic, "(optional) broadcast topic for redis events url")
	cmd.Flags().Duration(FlagOpsSendPeriod, cfg.UpdatesPeriod, "(optional) random updates send period, 0 disables them")
	cmd.Flags().Duration(FlagPollPeriod, cfg.PollPeriod, "(optional) list verification period")

	return cmd
}

func init() {
	rootCmd.AddCommand(GetClientCmd())
}
