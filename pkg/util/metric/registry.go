// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package metric

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/sparrowsql/sparrow/pkg/util/log"
	"github.com/sparrowsql/sparrow/pkg/util/syncutil"
)

// A Registry is a list of metrics. It provides a simple way of iterating
// over them and of rendering them for an external publisher.
//
// Registration takes a write lock; reading takes a read lock only long
// enough to copy the list of metrics, after which each value is read
// atomically. Publishers therefore never block writers of metric values.
type Registry struct {
	mu struct {
		syncutil.RWMutex
		tracked map[string]Iterable
	}
}

// NewRegistry creates a new Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.mu.tracked = map[string]Iterable{}
	return r
}

// AddMetric adds the passed-in metric to the registry. It is an error to
// register two metrics under the same name.
func (r *Registry) AddMetric(metric Iterable) error {
	name := metric.GetName()
	if name == "" {
		return errors.AssertionFailedf("metric of type %T has no name", metric)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.mu.tracked[name]; ok {
		return errors.Newf("metric %q already registered", name)
	}
	r.mu.tracked[name] = metric
	return nil
}

// MustAddMetric calls AddMetric and panics on error.
func (r *Registry) MustAddMetric(metric Iterable) {
	if err := r.AddMetric(metric); err != nil {
		panic(err)
	}
}

// AddMetricStruct examines all fields of metricStruct and adds all Iterable
// or metric.Struct objects to the registry.
func (r *Registry) AddMetricStruct(metricStruct interface{}) {
	ctx := context.TODO()
	v := reflect.ValueOf(metricStruct)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		vfield, tfield := v.Field(i), t.Field(i)
		if !vfield.CanInterface() {
			log.VEventf(ctx, 2, "skipping unexported field %s", tfield.Name)
			continue
		}
		switch vfield.Kind() {
		case reflect.Ptr, reflect.Interface:
			if vfield.IsNil() {
				continue
			}
		}
		val := vfield.Interface()
		switch typ := val.(type) {
		case Iterable:
			r.MustAddMetric(typ)
		case Struct:
			r.AddMetricStruct(typ)
		default:
			log.VEventf(ctx, 2, "skipping non-metric field %s", tfield.Name)
		}
	}
}

// Contains returns whether a metric with the given name is registered.
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.mu.tracked[name]
	return ok
}

// Get returns the metric registered under name, or nil.
func (r *Registry) Get(name string) Iterable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mu.tracked[name]
}

// metrics returns the tracked metrics sorted by name.
func (r *Registry) metrics() []Iterable {
	r.mu.RLock()
	ms := make([]Iterable, 0, len(r.mu.tracked))
	for _, m := range r.mu.tracked {
		ms = append(ms, m)
	}
	r.mu.RUnlock()
	sort.Slice(ms, func(i, j int) bool { return ms[i].GetName() < ms[j].GetName() })
	return ms
}

// Each calls the given closure for all metrics, in name order.
func (r *Registry) Each(f func(name string, val interface{})) {
	for _, m := range r.metrics() {
		f(m.GetName(), m.Value())
	}
}

// Snapshot returns the current value of every metric keyed by name.
func (r *Registry) Snapshot() map[string]interface{} {
	m := make(map[string]interface{})
	r.Each(func(name string, v interface{}) {
		m[name] = v
	})
	return m
}

// WriteText renders the registry as one "key:value" line per metric.
func (r *Registry) WriteText(w io.Writer) error {
	var err error
	r.Each(func(name string, v interface{}) {
		if err == nil {
			_, err = fmt.Fprintf(w, "%s:%v\n", name, v)
		}
	})
	return err
}

// WriteJSON renders the registry as a single JSON object in which every
// value is a string, i.e. {"key": "value", ...}.
func (r *Registry) WriteJSON(w io.Writer) error {
	m := make(map[string]string)
	r.Each(func(name string, v interface{}) {
		m[name] = fmt.Sprint(v)
	})
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// MarshalJSON marshals to JSON.
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Snapshot())
}
