package devtool

import (
	"context"
	"encoding/json"
	"fmt"
)

// EvalResult is the unwrapped result of a remote expression evaluation.
type EvalResult struct {
	// Value is the JSON-encoded result value, when returned by value.
	Value json.RawMessage

	// Type is the remote type tag ("string", "object", "undefined", ...).
	Type string

	// Description is the remote rendering of non-serializable values.
	Description string
}

type evaluateParams struct {
	Expression    string `json:"expression"`
	ReturnByValue bool   `json:"returnByValue"`
	AwaitPromise  bool   `json:"awaitPromise"`
}

type evaluateReply struct {
	Result struct {
		Type        string          `json:"type"`
		Value       json.RawMessage `json:"value,omitempty"`
		Description string          `json:"description,omitempty"`
	} `json:"result"`
	ExceptionDetails *struct {
		Text      string `json:"text"`
		Exception *struct {
			Description string `json:"description,omitempty"`
		} `json:"exception,omitempty"`
	} `json:"exceptionDetails,omitempty"`
}

// Evaluate runs a JavaScript expression in the remote application and unwraps
// the evaluation envelope. A remote exception surfaces as *RemoteError.
func (c *Client) Evaluate(ctx context.Context, expression string) (EvalResult, error) {
	raw, callErr := c.Call(ctx, "Runtime.evaluate", &evaluateParams{
		Expression:    expression,
		ReturnByValue: true,
		AwaitPromise:  true,
	})
	if callErr != nil {
		return EvalResult{}, callErr
	}

	var reply evaluateReply
	if unmarshalErr := json.Unmarshal(raw, &reply); unmarshalErr != nil {
		return EvalResult{}, fmt.Errorf("failed to decode evaluate result: %w", unmarshalErr)
	}

	if reply.ExceptionDetails != nil {
		msg := reply.ExceptionDetails.Text
		if reply.ExceptionDetails.Exception != nil && reply.ExceptionDetails.Exception.Description != "" {
			msg = reply.ExceptionDetails.Exception.Description
		}
		return EvalResult{}, &RemoteError{Method: "Runtime.evaluate", Message: msg}
	}

	return EvalResult{
		Value:       reply.Result.Value,
		Type:        reply.Result.Type,
		Description: reply.Result.Description,
	}, nil
}

// EvaluateInto evaluates an expression and decodes its by-value result into out.
func (c *Client) EvaluateInto(ctx context.Context, expression string, out any) error {
	res, evalErr := c.Evaluate(ctx, expression)
	if evalErr != nil {
		return evalErr
	}
	if len(res.Value) == 0 {
		return fmt.Errorf("expression produced no value (type %q)", res.Type)
	}
	if unmarshalErr := json.Unmarshal(res.Value, out); unmarshalErr != nil {
		return fmt.Errorf("failed to decode expression value: %w", unmarshalErr)
	}
	return nil
}
