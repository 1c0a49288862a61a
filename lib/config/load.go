// Copyright (C) 2014 The Syncthing Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"github.com/jackpal/gateway"
	"sigs.k8s.io/yaml"
)

// discoverInterface returns the address of the interface holding the
// default route.
var discoverInterface = gateway.DiscoverInterface

// Load reads, merges and validates the given fragments in order. Paths
// listed under "applications" in a fragment are loaded right after it,
// relative to its directory.
func Load(paths ...string) (*Configuration, error) {
	var cfg Configuration
	for _, path := range paths {
		if err := loadInto(&cfg, path, true); err != nil {
			return nil, err
		}
	}
	if err := cfg.prepare(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadInto(cfg *Configuration, path string, followApps bool) error {
	frag, err := ReadFile(path)
	if err != nil {
		return err
	}
	apps := frag.Applications
	frag.Applications = nil
	cfg.Merge(frag)
	l.Debugf("loaded %s", path)

	if !followApps {
		if len(apps) > 0 {
			l.Warnf("%s: ignoring nested applications list", path)
		}
		return nil
	}
	for _, app := range apps {
		if !filepath.IsAbs(app) {
			app = filepath.Join(filepath.Dir(path), app)
		}
		if err := loadInto(cfg, app, false); err != nil {
			return err
		}
	}
	return nil
}

// ReadFile parses one JSON or YAML fragment without applying defaults.
func ReadFile(path string) (Configuration, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return Configuration{}, err
	}
	cfg, err := Parse(bs)
	if err != nil {
		return Configuration{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a JSON or YAML fragment. Unknown keys are an error.
func Parse(bs []byte) (Configuration, error) {
	var cfg Configuration
	if err := yaml.UnmarshalStrict(bs, &cfg); err != nil {
		return Configuration{}, err
	}
	return cfg, nil
}

// Merge adds the contents of other. Lists are appended; a scalar set in
// other overrides the current value.
func (cfg *Configuration) Merge(other Configuration) {
	cfg.Applications = append(cfg.Applications, other.Applications...)
	cfg.NetworkEndpoints = append(cfg.NetworkEndpoints, other.NetworkEndpoints...)
	cfg.Services = append(cfg.Services, other.Services...)
	cfg.ProvidedServiceInstances = append(cfg.ProvidedServiceInstances, other.ProvidedServiceInstances...)
	cfg.RequiredServiceInstances = append(cfg.RequiredServiceInstances, other.RequiredServiceInstances...)
	cfg.StaticServiceDiscovery.Endpoints = append(cfg.StaticServiceDiscovery.Endpoints, other.StaticServiceDiscovery.Endpoints...)
	if other.StaticServiceDiscovery.Enable {
		cfg.StaticServiceDiscovery.Enable = true
	}
	if other.MessageOptimization {
		cfg.MessageOptimization = true
	}
	if other.RateLimit != (RateLimit{}) {
		cfg.RateLimit = other.RateLimit
	}
}

// prepare fills in defaults and resolves unspecified addresses.
func (cfg *Configuration) prepare() error {
	if err := setDefaults(reflect.ValueOf(cfg).Elem()); err != nil {
		return err
	}

	for i := range cfg.NetworkEndpoints {
		ne := &cfg.NetworkEndpoints[i]
		if ne.Address.IsValid() && !ne.Address.IsUnspecified() {
			continue
		}
		ip, err := discoverInterface()
		if err != nil {
			return fmt.Errorf("network endpoint %d: no address given and default interface unknown: %w", i, err)
		}
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			return fmt.Errorf("network endpoint %d: bad default interface address %v", i, ip)
		}
		ne.Address = addr.Unmap()
		l.Infof("Network endpoint %d using default interface address %v", i, ne.Address)
	}

	// With a single network endpoint, port mappings may leave the address
	// out.
	if len(cfg.NetworkEndpoints) == 1 {
		addr := cfg.NetworkEndpoints[0].Address
		for i := range cfg.ProvidedServiceInstances {
			pms := cfg.ProvidedServiceInstances[i].PortMappings
			for j := range pms {
				if !pms[j].Address.IsValid() {
					pms[j].Address = addr
				}
			}
		}
		for i := range cfg.RequiredServiceInstances {
			pm := &cfg.RequiredServiceInstances[i].PortMapping
			if !pm.Address.IsValid() {
				pm.Address = addr
			}
		}
	}
	return nil
}

// setDefaults sets zero valued fields carrying a default tag, recursing
// into nested structs and slices of structs.
func setDefaults(s reflect.Value) error {
	t := s.Type()
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		if !t.Field(i).IsExported() {
			continue
		}

		switch f.Kind() {
		case reflect.Struct:
			if f.Type() == reflect.TypeOf(netip.Addr{}) {
				continue
			}
			if err := setDefaults(f); err != nil {
				return err
			}
			continue
		case reflect.Slice:
			if f.Type().Elem().Kind() == reflect.Struct {
				for j := 0; j < f.Len(); j++ {
					if err := setDefaults(f.Index(j)); err != nil {
						return err
					}
				}
			}
			continue
		}

		v := t.Field(i).Tag.Get("default")
		if v == "" || !f.IsZero() {
			continue
		}
		switch f.Interface().(type) {
		case string:
			f.SetString(v)

		case time.Duration:
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			f.SetInt(int64(d))

		case int, int32, int64:
			i, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return err
			}
			f.SetInt(i)

		case uint8, uint16, uint32, uint64:
			i, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return err
			}
			f.SetUint(i)

		case float64:
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			f.SetFloat(x)

		case bool:
			f.SetBool(v == "true")

		default:
			panic(f.Type())
		}
	}
	return nil
}
