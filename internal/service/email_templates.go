package service

import "fmt"

func purchaseReceiptTemplate(r PurchaseReceipt, downloadURL, appName string) (string, string) {
	subject := fmt.Sprintf("Your %s purchase: %s", appName, r.Title)
	body := fmt.Sprintf(`Thanks for your purchase!

Photo: %s
Amount: %s
Order: %s
Payment: %s

Download the full-resolution original any time from:
%s

Download links expire after a few minutes; open the page again for a fresh one.

Best,
The %s Team`, r.Title, r.Amount, r.OrderID, r.PaymentID, downloadURL, appName)

	return subject, body
}

func planReceiptTemplate(r PlanReceipt, dashboardURL, appName string) (string, string) {
	subject := fmt.Sprintf("Your %s %s pack is active", appName, r.PackName)
	body := fmt.Sprintf(`Your seller pack is active.

Pack: %s
Amount: %s
Uploads: %d
Valid until: %s
Order: %s

Start uploading: %s

Best,
The %s Team`, r.PackName, r.Amount, r.UploadLimit, r.ExpiresAt, r.OrderID, dashboardURL, appName)

	return subject, body
}
