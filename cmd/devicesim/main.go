// Command devicesim runs a standalone libweave device: a real task
// runner, a filesystem-backed config store, the net/http and chi
// reference transports, and one demo "light" component whose on/off
// state a local HTTP endpoint can flip. It exists to exercise every
// provider wiring point devicemanager.New expects, the way a real
// embedder's main would.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"libweave/clock"
	"libweave/cloudsync"
	"libweave/command"
	"libweave/configstore"
	"libweave/devicemanager"
	"libweave/errcode"
	"libweave/logging"
	"libweave/runner"
	"libweave/transport"
	"libweave/value"
)

func main() {
	dataDir := flag.String("data-dir", "./devicesim-data", "directory for persisted settings and blobs")
	listenAddr := flag.String("listen", "127.0.0.1:8080", "local HTTP API address")
	probeAddr := flag.String("probe-addr", "8.8.8.8:53", "address dialed to detect internet connectivity")
	flag.Parse()

	logger := logging.New("devicesim", os.Stderr)

	backend, err := configstore.NewFileStore(*dataDir)
	if err != nil {
		log.Fatalf("configstore.NewFileStore: %v", err)
	}

	r := runner.New()
	r.Start()
	c := clock.System{}
	net := transport.NewPollingNetwork(*probeAddr, 30*time.Second)
	httpClient := transport.NewNetHTTPClient(nil, r)

	dm, err := devicemanager.New(devicemanager.Config{
		Backend: backend,
		Http:    httpClient,
		Network: net,
		Runner:  r,
		Clock:   c,
		Log:     logger,
	})
	if err != nil {
		log.Fatalf("devicemanager.New: %v", err)
	}

	if err := addLightComponent(dm); err != nil {
		log.Fatalf("addLightComponent: %v", err)
	}

	dm.OnGcdStateChanged(func(st cloudsync.GcdState) {
		logger.Info("registration state changed", "state", st.String())
	})

	server := transport.NewChiHTTPServer()
	server.Handle("/commands", commandHandler(dm))
	if err := server.Start(*listenAddr); err != nil {
		log.Fatalf("HttpServer.Start: %v", err)
	}
	logger.Info("devicesim listening", "addr", *listenAddr)

	select {}
}

func addLightComponent(dm *devicemanager.Manager) error {
	lightTrait := value.MapV(map[string]value.Value{
		"commands": value.MapV(map[string]value.Value{
			"setOn": value.MapV(map[string]value.Value{
				"minimalRole": value.StringV("manager"),
			}),
		}),
		"state": value.MapV(map[string]value.Value{
			"on": value.MapV(map[string]value.Value{"type": value.StringV("boolean")}),
		}),
	})
	if err := dm.AddTraitDefinitions(map[string]value.Value{"light": lightTrait}); err != nil {
		return err
	}
	if err := dm.AddComponent("", "lamp", []string{"light"}); err != nil {
		return err
	}
	if err := dm.SetStateProperty("lamp", "light.on", value.BoolV(false)); err != nil {
		return err
	}
	dm.AddCommandHandler("lamp", "light.setOn", func(inst *command.Instance) {
		params, _ := inst.Parameters.Map()
		on, ok := params["on"].Bool()
		if !ok {
			inst.SetError(errcode.New(errcode.InvalidPropValue, "light.setOn", "missing boolean parameter %q", "on"))
			return
		}
		if err := dm.SetStateProperty("lamp", "light.on", value.BoolV(on)); err != nil {
			inst.SetError(errcode.Wrap(errcode.Error, "light.setOn", err))
			return
		}
		inst.Complete(nil)
	})
	return nil
}

func commandHandler(dm *devicemanager.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		var raw json.RawMessage
		if err := json.NewDecoder(req.Body).Decode(&raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		inst, err := dm.AddCommand(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"commandId": inst.ID, "state": inst.State.String()})
	}
}
