package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"net/rpc"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/itiky/shared-list/broadcast"
	"github.com/itiky/shared-list/config"
	"github.com/itiky/shared-list/service/server"
	"github.com/itiky/shared-list/storage"
)

const (
	FlagPort         = "port"
	FlagHTTPAddr     = "http-addr"
	FlagStoreDSN     = "store"
	FlagBroadcastDSN = "broadcast"
	FlagTopic        = "topic"
	FlagMovePolicy   = "move-policy"
	FlagQueueSize    = "queue-size"
	FlagOpTimeout    = "op-timeout"
)

// GetServerCmd returns RPC / HTTP server start command.
func GetServerCmd() *cobra.Command {
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("server config: %v", err)
	}

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start list server",
		Run: func(cmd *cobra.Command, args []string) {
			// Parse inputs
			port, err := cmd.Flags().GetInt(FlagPort)
			if err != nil {
				log.Fatalf("%s flag: %v", FlagPort, err)
			}
			httpAddr, err := cmd.Flags().GetString(FlagHTTPAddr)
			if err != nil {
				log.Fatalf("%s flag: %v", FlagHTTPAddr, err)
			}
			storeDSN, err := cmd.Flags().GetString(FlagStoreDSN)
			if err != nil {
				log.Fatalf("%s flag: %v", FlagStoreDSN, err)
			}
			broadcastDSN, err := cmd.Flags().GetString(FlagBroadcastDSN)
			if err != nil {
				log.Fatalf("%s flag: %v", FlagBroadcastDSN, err)
			}
			topic, err := cmd.Flags().GetString(FlagTopic)
			if err != nil {
				log.Fatalf("%s flag: %v", FlagTopic, err)
			}
			movePolicyStr, err := cmd.Flags().GetString(FlagMovePolicy)
			if err != nil {
				log.Fatalf("%s flag: %v", FlagMovePolicy, err)
			}
			queueSize, err := cmd.Flags().GetInt(FlagQueueSize)
			if err != nil {
				log.Fatalf("%s flag: %v", FlagQueueSize, err)
			}
			opTimeout, err := cmd.Flags().GetDuration(FlagOpTimeout)
			if err != nil {
				log.Fatalf("%s flag: %v", FlagOpTimeout, err)
			}

			movePolicy, err := server.ParseMovePolicy(movePolicyStr)
			if err != nil {
				log.Fatalf("%s flag: %v", FlagMovePolicy, err)
			}

			// Init dependencies
			store, err := storage.Open(storeDSN)
			if err != nil {
				log.Fatalf("store init: %v", err)
			}
			defer store.Close()

			broadcaster, err := broadcast.Open(broadcastDSN, topic)
			if err != nil {
				log.Fatalf("broadcaster init: %v", err)
			}
			defer broadcaster.Close()

			// Init service
			svc, err := server.NewListService(store, broadcaster, queueSize, opTimeout, movePolicy)
			if err != nil {
				log.Fatalf("service init: %v", err)
			}

			// Start RPC server
			if err := rpc.RegisterName("ListService", svc); err != nil {
				log.Fatalf("RPC server: register: %v", err)
			}
			svc.Start()

			listener, err := net.Listen("tcp", ":"+strconv.Itoa(port))
			if err != nil {
				log.Fatalf("RPC server: listen: %v", err)
			}
			defer listener.Close()

			go rpc.Accept(listener)

			log.Printf("RPC server started: :%d", port)

			// Start HTTP server
			httpServer := &http.Server{
				Addr:    httpAddr,
				Handler: server.NewHTTPHandler(svc, broadcaster),
			}
			go func() {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatalf("HTTP server: %v", err)
				}
			}()

			log.Printf("HTTP server started: %s", httpAddr)

			// Wait for signal
			signalCh := make(chan os.Signal, 1)
			signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
			<-signalCh

			ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
			defer cancel()
			if err := httpServer.Shutdown(ctx); err != nil {
				log.Printf("HTTP server: shutdown: %v", err)
			}
			svc.Stop()
		},
	}
	cmd.Flags().Int(FlagPort, cfg.RPCPort, "(optional) RPC server port")
	cmd.Flags().String(FlagHTTPAddr, cfg.HTTPAddr, "(optional) HTTP server address")
	cmd.Flags().String(FlagStoreDSN, cfg.StoreDSN, "(optional) store DSN (memory://, file://<path>, postgres://...)")
	cmd.Flags().String(FlagBroadcastDSN, cfg.BroadcastDSN, "(optional) broadcast DSN (memory://, redis://...)")
	cmd.Flags().String(FlagTopic, cfg.Topic, "(optional) broadcast topic")
	cmd.Flags().String(FlagMovePolicy, cfg.MovePolicy, "(optional) move policy (overwrite, rerank)")
	cmd.Flags().Int(FlagQueueSize, cfg.QueueSize, "(optional) input mutations channel limit")
	cmd.Flags().Duration(FlagOpTimeout, cfg.OpTimeout, "(optional) storage / broadcast operation timeout")

	return cmd
}

func init() {
	rootCmd.AddCommand(GetServerCmd())
}
