/*
Package plugbus wires the service registry and event bus that let
independently built plugin modules discover shared capabilities and
exchange messages inside one process.

# Overview

A host constructs Services once and passes it explicitly to every module
at initialization; there is no ambient global state. Modules register
capabilities into the registry, subscribe to topics on the bus, and clean
up after themselves on unload:

	svc := plugbus.New()
	defer svc.Close()

	// Host side: register a capability.
	registry.Add[Orders](svc.Registry, "orders/service", ordersImpl, 1, "host")

	// Plugin side: version-gated discovery.
	orders, ok := registry.Get[Orders](svc.Registry, "orders/service", 1)
	if !ok {
	    // capability absent or too old; degrade gracefully
	}

	// Pub/sub with hierarchical patterns.
	svc.Bus.Subscribe("orders/**", "audit-plugin", func(evt event.Event) {
	    log.Println("order activity:", evt.Topic)
	})
	svc.Bus.Publish("orders/created", map[string]any{"id": 42}, "orders-plugin")

	// Module unload.
	svc.Bus.UnsubscribeAll("audit-plugin")
	svc.Bus.UnregisterAllHandlers("audit-plugin")
	svc.Registry.RemoveAll("audit-plugin")

See the registry, event, and topic packages for the individual contracts,
and NewFromConfigFile for host configuration.
*/
package plugbus
