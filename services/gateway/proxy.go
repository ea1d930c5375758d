// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/RecordFabric/pkg/faults"
	"github.com/AleutianAI/RecordFabric/pkg/redundancy"
	"github.com/AleutianAI/RecordFabric/services/gateway/observability"
	"github.com/AleutianAI/RecordFabric/services/gateway/registry"
)

// =============================================================================
// Proxy
// =============================================================================

// proxiedResponse is one downstream response relayed to the caller.
type proxiedResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// proxy forwards gateway requests to downstream services through the
// redundancy pipeline: per-service breaker, retry with backoff, timeout,
// alternative replicas, and a shared response cache for idempotent reads.
type proxy struct {
	registry *registry.Registry
	manager  *redundancy.Manager
	metrics  *observability.Metrics
	client   *http.Client
}

func newProxy(reg *registry.Registry, mgr *redundancy.Manager, metrics *observability.Metrics) *proxy {
	return &proxy{
		registry: reg,
		manager:  mgr,
		metrics:  metrics,
		// Per-attempt deadlines come from the pipeline's timeout stage, so
		// the transport client carries none of its own.
		client: &http.Client{},
	}
}

// hopByHopHeaders are connection-scoped and must not be forwarded in
// either direction.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Handle is the gateway's catch-all: it resolves the route, forwards the
// request through the pipeline, and relays whatever the downstream said.
func (p *proxy) Handle(c *gin.Context) {
	start := time.Now()
	path := c.Request.URL.Path

	desc, route, ok := p.registry.ResolveRoute(path)
	if !ok {
		err := faults.NotFound("route " + path)
		p.metrics.RecordRequest(path, "", err.HTTPStatus(), time.Since(start), string(err.Kind))
		faults.Respond(c, err)
		return
	}

	// Fail fast on a downstream the health prober has already marked
	// unreachable; the pipeline's retry budget buys nothing there. Unknown
	// and unhealthy services still get their chance.
	if rec := p.registry.Health(desc.Name); rec.Status == registry.StatusUnreachable {
		fault := faults.Transient(desc.Name+" is marked unreachable", nil)
		p.metrics.RecordRequest(path, desc.Name, fault.HTTPStatus(), time.Since(start), string(fault.Kind))
		faults.Respond(c, fault)
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		fault := faults.InvalidArgument("body", "could not be read")
		p.metrics.RecordRequest(path, desc.Name, fault.HTTPStatus(), time.Since(start), string(fault.Kind))
		faults.Respond(c, fault)
		return
	}

	downstreamPath := route.RewritePath(path)
	if raw := c.Request.URL.RawQuery; raw != "" {
		downstreamPath += "?" + raw
	}

	op := redundancy.Op[proxiedResponse]{
		Target:   desc.Name,
		CacheKey: cacheKeyFor(c.Request, desc.Name, downstreamPath),
		Primary: func(ctx context.Context) (proxiedResponse, error) {
			return p.forward(ctx, c.Request, desc.Name, desc.BaseURL, downstreamPath, body)
		},
	}
	for _, alt := range desc.Alternates {
		base := alt
		op.Alternates = append(op.Alternates, func(ctx context.Context) (proxiedResponse, error) {
			return p.forward(ctx, c.Request, desc.Name, base, downstreamPath, body)
		})
	}

	resp, err := redundancy.Execute(c.Request.Context(), p.manager, op)
	if err != nil {
		fault := faults.From(err)
		p.metrics.RecordRequest(path, desc.Name, fault.HTTPStatus(), time.Since(start), string(fault.Kind))
		faults.Respond(c, fault)
		return
	}

	// Only 2xx reads are worth memoizing; evict anything else.
	if op.CacheKey != "" && (resp.Status < 200 || resp.Status >= 300) {
		p.manager.Cache().Delete(op.CacheKey)
	}

	p.metrics.RecordRequest(path, desc.Name, resp.Status, time.Since(start), "")
	relay(c, resp)
}

// forward performs one attempt against base and translates transport
// failures and dependency 5xx responses into taxonomy faults so the
// retry and breaker stages can act on them. Sub-5xx responses are results,
// not errors: a downstream 404 or 422 is relayed verbatim.
func (p *proxy) forward(ctx context.Context, in *http.Request, service, base, path string, body []byte) (proxiedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, in.Method, base+path, bytes.NewReader(body))
	if err != nil {
		return proxiedResponse{}, faults.Internal("building downstream request", err)
	}
	copyHeaders(req.Header, in.Header)
	req.Header.Set("X-Forwarded-For", clientAddr(in))

	resp, err := p.client.Do(req)
	if err != nil {
		p.metrics.RecordDownstream(service, "error")
		if ctx.Err() == context.DeadlineExceeded {
			// The timeout stage produces the DeadlineExceeded fault; report
			// the raw cause here.
			return proxiedResponse{}, err
		}
		return proxiedResponse{}, faults.Transient(fmt.Sprintf("%s unreachable", service), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		p.metrics.RecordDownstream(service, "error")
		return proxiedResponse{}, faults.Transient(fmt.Sprintf("reading %s response", service), err)
	}

	p.metrics.RecordDownstream(service, statusClass(resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		return proxiedResponse{}, faults.Transient(
			fmt.Sprintf("%s returned %d", service, resp.StatusCode), nil)
	}

	header := make(http.Header, len(resp.Header))
	copyHeaders(header, resp.Header)
	return proxiedResponse{Status: resp.StatusCode, Header: header, Body: respBody}, nil
}

// relay writes a downstream response back to the caller unchanged.
func relay(c *gin.Context, resp proxiedResponse) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			c.Writer.Header().Add(k, v)
		}
	}
	c.Writer.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	c.Status(resp.Status)
	_, _ = c.Writer.Write(resp.Body)
}

// cacheKeyFor returns a memoization key for idempotent reads; writes are
// never cached.
func cacheKeyFor(r *http.Request, service, downstreamPath string) string {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return ""
	}
	return r.Method + " " + service + " " + downstreamPath
}

func copyHeaders(dst, src http.Header) {
	for k, vs := range src {
		if isHopByHop(k) {
			continue
		}
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func isHopByHop(name string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(name, h) {
			return true
		}
	}
	return false
}

func clientAddr(r *http.Request) string {
	addr := r.RemoteAddr
	if i := strings.LastIndex(addr, ":"); i > 0 {
		addr = addr[:i]
	}
	return addr
}

func statusClass(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
