// This file starts the broker daemon.
/*
 * Copyright (c) 2018, NVIDIA CORPORATION. All rights reserved.
 */
package main

import (
	"flag"
	"net/http"
	"os"

	"github.com/golang/glog"

	"github.com/undermoon-go/undermoon/broker"
	"github.com/undermoon-go/undermoon/cluster"
	"github.com/undermoon-go/undermoon/cmn"
)

// Exit codes per the design: 0 normal, 1 config error, 2 bind error.
const (
	exitOK         = 0
	exitConfigErr  = 1
	exitBindErr    = 2
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (defaults applied if absent)")
	dataDir := flag.String("data-dir", "", "directory for the scribble-backed topology snapshot (durability disabled if empty)")
	flag.Parse()
	defer glog.Flush()

	cfg, err := cmn.LoadConfig(*configPath)
	if err != nil {
		glog.Errorf("config error: %v", err)
		os.Exit(exitConfigErr)
	}
	cmn.GCO.Put(cfg)

	detector := cluster.NewDetector()
	store := cluster.New(detector)

	if *dataDir != "" {
		durability, err := cluster.NewScribbleDurability(*dataDir)
		if err != nil {
			glog.Errorf("config error: failed to open data dir %s: %v", *dataDir, err)
			os.Exit(exitConfigErr)
		}
		if snap, ok, err := durability.Load(); err != nil {
			glog.Errorf("config error: failed to load prior snapshot: %v", err)
			os.Exit(exitConfigErr)
		} else if ok {
			if err := store.Restore(snap); err != nil {
				glog.Errorf("config error: persisted snapshot failed validation: %v", err)
				os.Exit(exitConfigErr)
			}
			glog.Infof("restored topology snapshot from %s", *dataDir)
		}
		store.SetPersister(durability)
	}

	svc := broker.NewService(store, detector, cfg)
	glog.Infof("broker listening on %s", cfg.Broker.ListenAddr)
	if err := http.ListenAndServe(cfg.Broker.ListenAddr, svc.Mux()); err != nil {
		glog.Errorf("bind error: %v", err)
		os.Exit(exitBindErr)
	}
	os.Exit(exitOK)
}
