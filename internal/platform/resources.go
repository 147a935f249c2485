package platform

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// ListPatients retrieves a page of patients.
func (c *Client) ListPatients(ctx context.Context, opts ListOptions) (*Page[Patient], error) {
	return list[Patient](ctx, c, "/patients", opts)
}

// GetPatient retrieves a patient by ID.
func (c *Client) GetPatient(ctx context.Context, id string) (*Patient, error) {
	var patient Patient
	if err := c.Do(ctx, http.MethodGet, "/patients/"+url.PathEscape(id), nil, &patient); err != nil {
		return nil, err
	}
	return &patient, nil
}

// ListProviders retrieves a page of providers.
func (c *Client) ListProviders(ctx context.Context, opts ListOptions) (*Page[Provider], error) {
	return list[Provider](ctx, c, "/providers", opts)
}

// ListAppointments retrieves a page of appointments.
func (c *Client) ListAppointments(ctx context.Context, opts ListOptions) (*Page[Appointment], error) {
	return list[Appointment](ctx, c, "/appointments", opts)
}

// ListInvoices retrieves a page of invoices.
func (c *Client) ListInvoices(ctx context.Context, opts ListOptions) (*Page[Invoice], error) {
	return list[Invoice](ctx, c, "/invoices", opts)
}

// ListUsers retrieves a page of staff accounts. Requires an admin role.
func (c *Client) ListUsers(ctx context.Context, opts ListOptions) (*Page[User], error) {
	return list[User](ctx, c, "/users", opts)
}

func list[T any](ctx context.Context, c *Client, path string, opts ListOptions) (*Page[T], error) {
	var page Page[T]
	if err := c.Do(ctx, http.MethodGet, path+listQuery(opts), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func listQuery(opts ListOptions) string {
	q := url.Values{}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
