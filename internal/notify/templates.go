package notify

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/example/order-fulfillment/internal/domain/order"
)

// shortRef is the 8-character order reference used in subject lines.
func shortRef(orderID string) string {
	if len(orderID) > 8 {
		return orderID[:8]
	}
	return orderID
}

func confirmedSubject(orderID string) string {
	return fmt.Sprintf("Your order %s is confirmed", shortRef(orderID))
}

func readySubject(orderID string) string {
	return fmt.Sprintf("Your order %s is ready for shipment", shortRef(orderID))
}

func shippedSubject(orderID string) string {
	return fmt.Sprintf("Your order %s has shipped", shortRef(orderID))
}

// buildConfirmedBody renders the confirmation mail with the priced lines.
func buildConfirmedBody(e order.OrderConfirmed) string {
	var linesHTML strings.Builder
	for _, l := range e.Lines {
		label := l.ProductID.String()
		if l.VariantID != nil {
			label = fmt.Sprintf("%s / %s", l.ProductID, l.VariantID)
		}
		subtotal := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		linesHTML.WriteString(fmt.Sprintf(
			`<tr>
				<td style="padding: 12px; border-bottom: 1px solid #eee;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">%d</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
				<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
			</tr>`,
			label,
			l.Quantity,
			l.UnitPrice.StringFixed(2),
			subtotal.StringFixed(2),
		))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<h1 style="font-size: 22px;">Thank you for your order</h1>
	<p>We have confirmed your order and reserved the stock for it.</p>

	<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
		<p style="margin: 0; font-size: 14px; color: #666;">Order reference</p>
		<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>
	</div>

	<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
		<thead>
			<tr style="background: #f8f9fa;">
				<th style="padding: 12px; text-align: left; font-weight: 600;">Item</th>
				<th style="padding: 12px; text-align: center; font-weight: 600;">Qty</th>
				<th style="padding: 12px; text-align: right; font-weight: 600;">Unit price</th>
				<th style="padding: 12px; text-align: right; font-weight: 600;">Subtotal</th>
			</tr>
		</thead>
		<tbody>
			%s
		</tbody>
	</table>

	<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">
		<span style="font-size: 14px; color: #666;">Order total</span>
		<span style="font-size: 22px; font-weight: bold; margin-left: 10px;">%s</span>
	</div>

	<p style="font-size: 12px; color: #999;">This is an automated message. Please contact support with any questions.</p>
</body>
</html>`, e.OrderID, linesHTML.String(), e.Total.StringFixed(2))
}

func buildReadyBody(e order.OrderReady) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<h1 style="font-size: 22px;">Your order is ready</h1>
	<p>Order <strong style="font-family: monospace;">%s</strong> has been picked and packed and is waiting for the carrier.</p>
	<p>We will let you know as soon as it ships.</p>
	<p style="font-size: 12px; color: #999;">This is an automated message. Please contact support with any questions.</p>
</body>
</html>`, shortRef(e.OrderID.String()))
}

func buildShippedBody(e order.OrderShipped) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<h1 style="font-size: 22px;">Your order has shipped</h1>
	<p>Order <strong style="font-family: monospace;">%s</strong> was handed to the carrier on %s.</p>
	<p style="font-size: 12px; color: #999;">This is an automated message. Please contact support with any questions.</p>
</body>
</html>`, shortRef(e.OrderID.String()), e.ShippedAt.Format("2 January 2006"))
}
