// cmd/tools/create-topics/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"notification-platform/internal/common/broker"
	"notification-platform/internal/common/config"
	"notification-platform/internal/common/logger"
	"notification-platform/internal/notification/events"
)

func main() {
	createCmd := flag.NewFlagSet("create", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)

	configPath := ""
	for _, fs := range []*flag.FlagSet{createCmd, listCmd} {
		fs.StringVar(&configPath, "config", "", "Path to a config file (defaults to the standard lookup)")
	}
	partitions := createCmd.Int("partitions", 0, "Partitions per topic (0 uses broker.kafka.partitions)")
	replication := createCmd.Int("replication", 0, "Replication factor (0 uses broker.kafka.replication_factor)")
	driver := createCmd.String("driver", "", "Override broker driver (kafka or nats)")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "create":
		createCmd.Parse(os.Args[2:])
		cfg := loadConfig(configPath)
		if *driver != "" {
			cfg.Broker.Driver = *driver
		}
		p := cfg.Broker.Kafka.Partitions
		if *partitions > 0 {
			p = int32(*partitions)
		}
		rf := cfg.Broker.Kafka.ReplicationFactor
		if *replication > 0 {
			rf = int16(*replication)
		}
		createTopics(cfg, p, rf)
	case "list":
		listCmd.Parse(os.Args[2:])
		listTopics(loadConfig(configPath))
	default:
		help()
		os.Exit(1)
	}
}

func loadConfig(path string) *config.Config {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func createTopics(cfg *config.Config, partitions int32, replicationFactor int16) {
	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)
	admin, err := broker.NewAdmin(cfg.Broker, log)
	if err != nil {
		fmt.Printf("Error connecting to broker: %v\n", err)
		os.Exit(1)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created, err := broker.EnsureTopics(ctx, admin, events.Topics(), partitions, replicationFactor)
	if err != nil {
		fmt.Printf("Error creating topics: %v\n", err)
		os.Exit(1)
	}
	if len(created) == 0 {
		fmt.Println("All topics already exist.")
		return
	}
	fmt.Printf("Created %d topics (partitions=%d, replication=%d):\n", len(created), partitions, replicationFactor)
	for _, t := range created {
		fmt.Printf("  %s\n", t)
	}
}

func listTopics(cfg *config.Config) {
	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)
	admin, err := broker.NewAdmin(cfg.Broker, log)
	if err != nil {
		fmt.Printf("Error connecting to broker: %v\n", err)
		os.Exit(1)
	}
	defer admin.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topics, err := admin.ListTopics(ctx)
	if err != nil {
		fmt.Printf("Error listing topics: %v\n", err)
		os.Exit(1)
	}
	sort.Strings(topics)
	for _, t := range topics {
		fmt.Println(t)
	}
}

func help() {
	fmt.Println("Usage: create-topics <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  create   Create every notification topic that does not exist yet")
	fmt.Println("  list     List topics known to the broker")
}
